package archive

import (
	"context"
	"testing"
	"time"
)

func testRecord(id string, ended time.Time) *Record {
	return &Record{
		SessionID: id,
		TopicID:   "topic-1",
		StartedAt: ended.Add(-10 * time.Minute),
		EndedAt:   ended,
		TurnCount: 3,
		TotalCost: 0.042,
		Entries: []Entry{
			{ID: "e1", Role: "user", Text: "What is a monsoon?", Timestamp: ended.Add(-9 * time.Minute)},
			{ID: "e2", Role: "assistant", Text: "A seasonal wind pattern.", Timestamp: ended.Add(-8 * time.Minute),
				Metadata: map[string]string{"turn": "1"}},
		},
	}
}

func TestMemArchiverSaveGet(t *testing.T) {
	a := NewMemArchiver()
	ctx := context.Background()
	ended := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := a.Save(ctx, testRecord("s1", ended)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := a.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for saved record")
	}
	if got.TurnCount != 3 || got.TotalCost != 0.042 {
		t.Errorf("unexpected record: %+v", got)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Entries))
	}
	if got.Entries[1].Metadata["turn"] != "1" {
		t.Errorf("entry metadata not preserved: %+v", got.Entries[1].Metadata)
	}
}

func TestMemArchiverGetMissing(t *testing.T) {
	a := NewMemArchiver()
	got, err := a.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing record, got %+v", got)
	}
}

func TestMemArchiverSaveReplaces(t *testing.T) {
	a := NewMemArchiver()
	ctx := context.Background()
	ended := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := a.Save(ctx, testRecord("s1", ended)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	updated := testRecord("s1", ended)
	updated.TurnCount = 7
	if err := a.Save(ctx, updated); err != nil {
		t.Fatalf("Save replace: %v", err)
	}

	got, err := a.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TurnCount != 7 {
		t.Errorf("expected replaced record with TurnCount 7, got %d", got.TurnCount)
	}
}

func TestMemArchiverListOrderAndLimit(t *testing.T) {
	a := NewMemArchiver()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := a.Save(ctx, testRecord(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	recs, err := a.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	// Most recently ended first.
	if recs[0].SessionID != "c" || recs[2].SessionID != "a" {
		t.Errorf("unexpected order: %s, %s, %s", recs[0].SessionID, recs[1].SessionID, recs[2].SessionID)
	}

	recs, err = a.List(ctx, 2)
	if err != nil {
		t.Fatalf("List limit: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 records with limit, got %d", len(recs))
	}
}

func TestMemArchiverCopyIsolation(t *testing.T) {
	a := NewMemArchiver()
	ctx := context.Background()
	ended := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := testRecord("s1", ended)
	if err := a.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's record after Save must not affect the store.
	rec.Entries[0].Text = "mutated"
	rec.Entries[1].Metadata["turn"] = "99"

	got, err := a.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Entries[0].Text != "What is a monsoon?" {
		t.Errorf("stored entry text mutated: %q", got.Entries[0].Text)
	}
	if got.Entries[1].Metadata["turn"] != "1" {
		t.Errorf("stored entry metadata mutated: %q", got.Entries[1].Metadata["turn"])
	}
}
