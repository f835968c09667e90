// Package audioio defines the interface between the conversation core and the
// platform audio device layer.
//
// The central abstraction is [Engine]: a duplex audio endpoint that captures
// microphone frames and plays back synthesised speech. Implementations wrap
// platform audio APIs (desktop audio backends, a network audio bridge, or a
// test double); the orchestrator only ever talks to this interface.
//
// Capture is push-based: once started, the engine delivers [Frame] values on
// the channel returned by [Engine.Frames] until capture is stopped. Playback
// is pull-based from the engine's perspective: the orchestrator queues raw PCM
// chunks and the engine drains them to the device at its own pace.
//
// Implementations must be safe for concurrent use.
package audioio

import (
	"context"
	"time"
)

// Config describes the audio format for capture and playback. The defaults
// target the speech pipeline: 16 kHz mono PCM in bursts of 192 frames (~12 ms).
type Config struct {
	// SampleRate is the capture and playback sample rate in Hz.
	SampleRate int

	// Channels is the channel count. 1 = mono, which is what STT providers expect.
	Channels int

	// FramesPerBurst is the number of samples delivered per capture callback.
	FramesPerBurst int
}

// DefaultConfig returns the standard low-latency voice configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		Channels:       1,
		FramesPerBurst: 192,
	}
}

// Frame is a single burst of captured audio.
type Frame struct {
	// Data is raw little-endian 16-bit PCM.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count of Data.
	Channels int

	// Timestamp marks when the frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Engine is the duplex audio device boundary.
//
// All methods must be safe for concurrent use. StartCapture and StopCapture
// may be called repeatedly; starting an already-capturing engine is an error,
// stopping an idle engine is a no-op.
type Engine interface {
	// StartCapture opens the input device with the given configuration and
	// begins delivering frames on the channel returned by Frames. Returns an
	// error if the device cannot be opened or if capture is already running.
	StartCapture(ctx context.Context, cfg Config) error

	// Frames returns the channel on which captured frames are delivered.
	// The channel is owned by the engine; it is closed when the engine itself
	// is closed, not on StopCapture, so a capture-stop/capture-start cycle
	// does not invalidate readers.
	Frames() <-chan Frame

	// StopCapture closes the input device. Frames already in flight may still
	// be delivered. Safe to call when capture is not running.
	StopCapture() error

	// QueuePlayback appends a chunk of raw PCM to the playback queue. The queue
	// is bounded; when full, QueuePlayback blocks until space is available or
	// playback is stopped. It reports false if the chunk was dropped because
	// playback is stopped or the device has failed.
	QueuePlayback(chunk []byte) bool

	// StopPlayback halts the output device immediately and discards every chunk
	// still in the playback queue.
	StopPlayback()

	// WaitPlaybackDrained blocks until all queued chunks have been played, the
	// queue is flushed by StopPlayback, or ctx is cancelled.
	WaitPlaybackDrained(ctx context.Context) error

	// Close releases the underlying devices and closes the Frames channel.
	// Safe to call more than once.
	Close() error
}
