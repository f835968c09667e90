package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/unamentis/unamentis/pkg/provider/tts"
	ttsmock "github.com/unamentis/unamentis/pkg/provider/tts/mock"
)

func TestTTSFallback_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("audio-primary")},
	}
	secondary := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("audio-secondary")},
	}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text := make(chan string)
	close(text)
	ch, err := fb.SynthesizeStream(context.Background(), text, tts.VoiceProfile{ID: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var chunks []tts.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 1 || string(chunks[0].Audio) != "audio-primary" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestTTSFallback_Failover(t *testing.T) {
	primary := &ttsmock.Provider{
		SynthesizeErr: errors.New("primary down"),
	}
	secondary := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("audio-secondary")},
	}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text := make(chan string)
	close(text)
	ch, err := fb.SynthesizeStream(context.Background(), text, tts.VoiceProfile{ID: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var chunks []tts.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 1 || string(chunks[0].Audio) != "audio-secondary" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{SynthesizeErr: errors.New("secondary down")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text := make(chan string)
	close(text)
	_, err := fb.SynthesizeStream(context.Background(), text, tts.VoiceProfile{ID: "v1"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_ListVoices(t *testing.T) {
	primary := &ttsmock.Provider{ListVoicesErr: errors.New("down")}
	secondary := &ttsmock.Provider{
		ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
	}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "v1" {
		t.Fatalf("unexpected voices: %+v", voices)
	}
}
