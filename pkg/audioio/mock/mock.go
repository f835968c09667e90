// Package mock provides a test double for the audioio.Engine interface.
//
// The mock records every queued playback chunk and lets tests push synthetic
// capture frames via [Engine.EmitFrame]. Error injection fields cover the
// failure paths the orchestrator must handle (capture refusing to start,
// playback dropping chunks).
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/unamentis/unamentis/pkg/audioio"
)

// Engine is a mock implementation of audioio.Engine.
// Zero value is ready to use. All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	// --- Error injection ---

	// StartCaptureErr, if non-nil, is returned by StartCapture.
	StartCaptureErr error

	// QueuePlaybackResult is returned by QueuePlayback. Defaults to true via
	// the rejectPlayback flag being unset; set RejectPlayback to make
	// QueuePlayback report false.
	RejectPlayback bool

	// --- Call records ---

	// StartCaptureCalls counts StartCapture invocations.
	StartCaptureCalls int

	// StopCaptureCalls counts StopCapture invocations.
	StopCaptureCalls int

	// StopPlaybackCalls counts StopPlayback invocations.
	StopPlaybackCalls int

	// Played holds every chunk accepted by QueuePlayback, in order.
	Played [][]byte

	// LastConfig is the Config passed to the most recent StartCapture call.
	LastConfig audioio.Config

	capturing bool
	frames    chan audioio.Frame
	closed    bool
}

// Compile-time interface assertion.
var _ audioio.Engine = (*Engine)(nil)

// New returns a mock engine with a buffered frame channel.
func New() *Engine {
	return &Engine{frames: make(chan audioio.Frame, 64)}
}

// EmitFrame delivers a synthetic capture frame to the orchestrator, as if the
// microphone had produced it. EmitFrame panics if the engine was not created
// with New.
func (e *Engine) EmitFrame(f audioio.Frame) {
	e.frames <- f
}

// StartCapture records the call and returns StartCaptureErr.
func (e *Engine) StartCapture(_ context.Context, cfg audioio.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StartCaptureCalls++
	e.LastConfig = cfg
	if e.StartCaptureErr != nil {
		return e.StartCaptureErr
	}
	if e.capturing {
		return errors.New("mock audio: capture already running")
	}
	e.capturing = true
	return nil
}

// Frames returns the synthetic frame channel fed by EmitFrame.
func (e *Engine) Frames() <-chan audioio.Frame {
	return e.frames
}

// StopCapture records the call and marks capture stopped.
func (e *Engine) StopCapture() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StopCaptureCalls++
	e.capturing = false
	return nil
}

// Capturing reports whether capture is currently running.
func (e *Engine) Capturing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capturing
}

// QueuePlayback records the chunk unless RejectPlayback is set.
func (e *Engine) QueuePlayback(chunk []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.RejectPlayback {
		return false
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	e.Played = append(e.Played, cp)
	return true
}

// StopPlayback records the call. The mock's queue is always considered flushed.
func (e *Engine) StopPlayback() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StopPlaybackCalls++
}

// WaitPlaybackDrained returns immediately; the mock plays chunks instantly.
func (e *Engine) WaitPlaybackDrained(ctx context.Context) error {
	return ctx.Err()
}

// PlayedCount returns the number of chunks accepted so far.
func (e *Engine) PlayedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Played)
}

// Close closes the frame channel. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.capturing = false
	close(e.frames)
	return nil
}
