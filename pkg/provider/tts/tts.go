// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, or a
// local Piper instance) and presents a uniform streaming interface. The
// primary entry point is SynthesizeStream, which accepts a channel of text
// fragments and returns a channel of audio chunks as they become available,
// enabling low-latency pipelining between the LLM output and audio playback.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile describes a synthesis voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string
}

// Chunk is a fragment of synthesised audio.
type Chunk struct {
	// Audio is raw PCM audio bytes. May be empty on a final marker chunk.
	Audio []byte

	// IsFirst marks the first audio-bearing chunk of the stream. The latency
	// between starting synthesis and receiving this chunk is the provider's
	// time-to-first-byte.
	IsFirst bool

	// IsLast marks the final chunk of the stream; no further chunks follow.
	IsLast bool
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; multiple synthesis
// requests may run in parallel.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits audio chunks as they are synthesised. This
	// design allows the caller to pipe LLM streaming output directly into
	// synthesis without waiting for the full text to be available.
	//
	// The returned channel is closed by the implementation when all text has
	// been synthesised or when ctx is cancelled. The caller must drain the
	// channel to avoid blocking the provider's internal goroutines.
	//
	// voice specifies the voice profile to use. Providers should return an
	// error if the requested voice is not available.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis are signalled by closing the channel early;
	// callers should check ctx.Err() to distinguish cancellation from provider
	// errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan Chunk, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
