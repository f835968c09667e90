package session

import (
	"reflect"
	"testing"
)

func TestSentenceBoundary(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       string
		minRunes int
		want     int
	}{
		{"simple period", "Hello there. And more", 0, 11},
		{"exclamation", "Wow! Next", 0, 3},
		{"question", "Really? Yes", 0, 6},
		{"no trailing whitespace", "Hello there.", 0, -1},
		{"no boundary", "Hello there", 0, -1},
		{"min runes holds back short sentence", "Dr. Smith said hi", 5, -1},
		{"min runes satisfied", "Plate tectonics is neat. More", 10, 23},
		{"empty", "", 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sentenceBoundary(tt.in, tt.minRunes); got != tt.want {
				t.Errorf("sentenceBoundary(%q, %d) = %d, want %d", tt.in, tt.minRunes, got, tt.want)
			}
		})
	}
}

func TestSentenceSplitter_PushAcrossChunks(t *testing.T) {
	t.Parallel()
	sp := &sentenceSplitter{}

	if got := sp.push("Erosion wears"); got != nil {
		t.Errorf("incomplete sentence should emit nothing, got %v", got)
	}
	got := sp.push(" rocks down. Deposition builds. And")
	want := []string{"Erosion wears rocks down.", "Deposition builds."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("push: got %v, want %v", got, want)
	}
	if rest := sp.flush(); rest != "And" {
		t.Errorf("flush: got %q, want %q", rest, "And")
	}
}

func TestSentenceSplitter_MinRunesMergesFragments(t *testing.T) {
	t.Parallel()
	sp := &sentenceSplitter{minRunes: 12}

	// "Dr. " alone is below the threshold and must be merged forward.
	if got := sp.push("Dr. "); got != nil {
		t.Errorf("short fragment should be held back, got %v", got)
	}
	got := sp.push("Smith agrees. Next")
	want := []string{"Dr. Smith agrees."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("push: got %v, want %v", got, want)
	}
}

func TestSentenceSplitter_FlushResets(t *testing.T) {
	t.Parallel()
	sp := &sentenceSplitter{}
	sp.push("leftover")
	if rest := sp.flush(); rest != "leftover" {
		t.Errorf("flush: got %q", rest)
	}
	if rest := sp.flush(); rest != "" {
		t.Errorf("second flush should be empty, got %q", rest)
	}
}
