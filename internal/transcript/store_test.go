package transcript

import (
	"testing"
	"time"
)

func TestAppendOrderAndImmutability(t *testing.T) {
	s := NewStore("sess-1")

	u := s.Append(RoleUser, "What is erosion?", map[string]string{"turn": "1"})
	a := s.Append(RoleAssistant, "The wearing away of rock.", map[string]string{"turn": "1"})

	if u.ID == "" || a.ID == "" {
		t.Fatal("entries must carry ids")
	}
	if u.ID == a.ID {
		t.Error("entry ids must be unique")
	}
	if u.SessionID != "sess-1" || a.SessionID != "sess-1" {
		t.Error("entries must carry the session id")
	}

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Role != RoleUser || entries[1].Role != RoleAssistant {
		t.Errorf("unexpected order: %s, %s", entries[0].Role, entries[1].Role)
	}

	// Mutating the returned slice must not affect the store.
	entries[0].Text = "mutated"
	if s.Entries()[0].Text != "What is erosion?" {
		t.Error("returned entries should be a copy")
	}
}

func TestAppendCopiesMetadata(t *testing.T) {
	s := NewStore("sess-1")
	meta := map[string]string{"turn": "1"}
	e := s.Append(RoleUser, "hello", meta)

	meta["turn"] = "99"
	if e.Metadata["turn"] != "1" {
		t.Errorf("metadata not copied on append: %q", e.Metadata["turn"])
	}
}

func TestTimestampsMonotonic(t *testing.T) {
	s := NewStore("sess-1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := 0
	s.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Second)
	}

	s.Append(RoleUser, "one", nil)
	s.Append(RoleAssistant, "two", nil)

	entries := s.Entries()
	if !entries[1].Timestamp.After(entries[0].Timestamp) {
		t.Errorf("timestamps out of order: %v, %v", entries[0].Timestamp, entries[1].Timestamp)
	}
}

func TestMessagesRendering(t *testing.T) {
	s := NewStore("sess-1")
	s.Append(RoleUser, "Hi", nil)
	s.Append(RoleAssistant, "Hello! What shall we study?", nil)

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "Hi" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" {
		t.Errorf("unexpected second message role: %q", msgs[1].Role)
	}
}

func TestLen(t *testing.T) {
	s := NewStore("sess-1")
	if s.Len() != 0 {
		t.Errorf("empty store Len = %d", s.Len())
	}
	s.Append(RoleUser, "x", nil)
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}
