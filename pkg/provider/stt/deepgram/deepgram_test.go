package deepgram

import (
	"strings"
	"testing"
	"time"

	"github.com/unamentis/unamentis/pkg/provider/stt"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\"): want error, got nil")
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()
	p, err := New("key", WithModel("nova-3"), WithLanguage("en-US"), WithEndpointing(250*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	for _, want := range []string{
		"model=nova-3",
		"language=en-US",
		"sample_rate=16000",
		"channels=1",
		"interim_results=true",
		"punctuate=true",
		"endpointing=250",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("buildURL result missing %q: %s", want, u)
		}
	}
}

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if !strings.Contains(u, "sample_rate=16000") {
		t.Errorf("default sample rate not applied: %s", u)
	}
	if !strings.Contains(u, "language=en") {
		t.Errorf("default language not applied: %s", u)
	}
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  string
		wantOK   bool
		wantText string
		wantFin  bool
	}{
		{
			name:     "final result",
			payload:  `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"what is a quasar","confidence":0.98}]},"duration":1.5}`,
			wantOK:   true,
			wantText: "what is a quasar",
			wantFin:  true,
		},
		{
			name:     "interim result",
			payload:  `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"what is","confidence":0.71}]}}`,
			wantOK:   true,
			wantText: "what is",
			wantFin:  false,
		},
		{
			name:    "metadata message ignored",
			payload: `{"type":"Metadata","duration":12.3}`,
			wantOK:  false,
		},
		{
			name:    "no alternatives ignored",
			payload: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`,
			wantOK:  false,
		},
		{
			name:    "malformed json ignored",
			payload: `{not json`,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseResponse([]byte(tt.payload))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.IsFinal != tt.wantFin {
				t.Errorf("IsFinal = %v, want %v", got.IsFinal, tt.wantFin)
			}
		})
	}
}

func TestParseResponse_Duration(t *testing.T) {
	t.Parallel()
	got, ok := parseResponse([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hi"}]},"duration":0.5}`))
	if !ok {
		t.Fatal("parseResponse: not ok")
	}
	if got.Duration != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", got.Duration)
	}
}
