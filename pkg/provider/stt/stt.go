// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a real-time transcription service (e.g. Deepgram, or
// a self-hosted recogniser) behind a uniform streaming interface. The central
// abstraction is [SessionHandle]: once opened, a session accepts raw PCM audio
// and emits [Transcript] values — low-latency partials for responsiveness and
// authoritative finals that drive the conversation turn.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// StreamConfig describes the audio format and recognition hints for a new
// transcription session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 is the usual value for
	// STT-optimised mono capture.
	SampleRate int

	// Channels is the number of audio channels; 1 is required by most providers.
	Channels int

	// Language is the BCP-47 language tag (e.g. "en-US"). Empty lets the
	// provider auto-detect, where supported.
	Language string
}

// Transcript is a speech-to-text result. Both interim and final results use
// this type, distinguished by IsFinal.
type Transcript struct {
	// Text is the transcribed speech.
	Text string

	// IsFinal marks an authoritative, endpointed result. Only final transcripts
	// enter the session log; partials are for UI feedback.
	IsFinal bool

	// Confidence is the provider's confidence score in [0.0, 1.0], zero when
	// not reported.
	Confidence float64

	// Duration is the length of the recognised utterance, when reported.
	Duration time.Duration
}

// SessionHandle is an open streaming transcription session.
//
// Callers must call Close when done; failing to do so may leak goroutines and
// network connections inside the provider. All methods must be safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw little-endian 16-bit PCM matching the
	// session's StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Results returns the channel on which transcripts are delivered, partials
	// and finals interleaved in recognition order. The channel is closed when
	// the session ends.
	Results() <-chan Transcript

	// Close flushes pending audio, terminates the session and closes the
	// Results channel. Safe to call more than once.
	Close() error
}

// Provider is the abstraction over any STT backend. Multiple sessions may be
// open at once.
type Provider interface {
	// StartStream opens a streaming transcription session. The returned handle
	// accepts audio immediately. Returns an error if the session cannot be
	// established (authentication failure, unsupported configuration, or a
	// cancelled ctx).
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
