// Package pipe implements [audioio.Engine] over plain byte streams.
//
// Capture reads raw little-endian 16-bit PCM from an [io.Reader] and playback
// writes raw PCM to an [io.Writer]. This is the default engine for the CLI
// binary: pair it with any external capture/playback tool, e.g.
//
//	arecord -f S16_LE -r 16000 -c 1 | unamentis | aplay -f S16_LE -r 16000 -c 1
//
// The engine carries no device bindings of its own, which keeps the binary
// free of CGo while still exercising the full capture and playback paths.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/unamentis/unamentis/pkg/audioio"
)

// defaultQueueDepth bounds the playback queue. At ~12 ms per synthesis chunk
// this is roughly a third of a second of buffered speech.
const defaultQueueDepth = 32

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithQueueDepth sets the maximum number of queued playback chunks before
// QueuePlayback blocks. Default 32.
func WithQueueDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueDepth = n
		}
	}
}

// Engine is a duplex [audioio.Engine] backed by a reader (capture) and a
// writer (playback).
type Engine struct {
	in  io.Reader
	out io.Writer

	frames     chan audioio.Frame
	queueDepth int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   [][]byte
	writing bool
	// flushGen increments on every StopPlayback so blocked producers learn
	// their chunk was discarded rather than enqueued.
	flushGen uint64
	failed   bool
	closed   bool

	capturing  bool
	capStop    chan struct{}
	capDone    chan struct{}
	framesOnce sync.Once
}

// Compile-time interface check.
var _ audioio.Engine = (*Engine)(nil)

// NewEngine creates an Engine that captures from in and plays to out. Either
// stream may be nil: a nil reader delivers no frames (capture starts and
// immediately reaches end of input) and a nil writer discards playback.
func NewEngine(in io.Reader, out io.Writer, opts ...Option) *Engine {
	e := &Engine{
		in:         in,
		out:        out,
		frames:     make(chan audioio.Frame, 8),
		queueDepth: defaultQueueDepth,
	}
	e.cond = sync.NewCond(&e.mu)
	for _, o := range opts {
		o(e)
	}
	go e.writeLoop()
	return e
}

// StartCapture begins reading PCM bursts from the input stream.
func (e *Engine) StartCapture(_ context.Context, cfg audioio.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("pipe: engine closed")
	}
	if e.capturing {
		return errors.New("pipe: capture already running")
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 || cfg.FramesPerBurst <= 0 {
		return fmt.Errorf("pipe: invalid capture config %+v", cfg)
	}
	e.capturing = true
	e.capStop = make(chan struct{})
	e.capDone = make(chan struct{})
	go e.readLoop(cfg, e.capStop, e.capDone)
	return nil
}

// Frames returns the capture channel. It is closed by Close, not StopCapture.
func (e *Engine) Frames() <-chan audioio.Frame {
	return e.frames
}

// StopCapture stops delivering frames. The blocking read in flight finishes
// first, so one more frame may still arrive.
func (e *Engine) StopCapture() error {
	e.mu.Lock()
	if !e.capturing {
		e.mu.Unlock()
		return nil
	}
	e.capturing = false
	stop, done := e.capStop, e.capDone
	e.mu.Unlock()

	close(stop)
	<-done
	return nil
}

func (e *Engine) readLoop(cfg audioio.Config, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if e.in == nil {
		return
	}

	burstBytes := cfg.FramesPerBurst * cfg.Channels * 2
	burstDur := time.Duration(cfg.FramesPerBurst) * time.Second / time.Duration(cfg.SampleRate)
	var elapsed time.Duration

	for {
		select {
		case <-stop:
			return
		default:
		}

		buf := make([]byte, burstBytes)
		n, err := io.ReadFull(e.in, buf)
		if n > 0 {
			frame := audioio.Frame{
				Data:       buf[:n],
				SampleRate: cfg.SampleRate,
				Channels:   cfg.Channels,
				Timestamp:  elapsed,
			}
			elapsed += burstDur
			select {
			case e.frames <- frame:
			case <-stop:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Warn("audio input read failed", "err", err)
			}
			return
		}
	}
}

// QueuePlayback appends a PCM chunk to the playback queue, blocking while the
// queue is full. Reports false if the chunk was discarded because playback was
// stopped, the writer failed, or the engine is closed.
func (e *Engine) QueuePlayback(chunk []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	gen := e.flushGen
	for len(e.queue) >= e.queueDepth {
		if e.closed || e.failed || e.flushGen != gen {
			return false
		}
		e.cond.Wait()
	}
	if e.closed || e.failed || e.flushGen != gen {
		return false
	}
	e.queue = append(e.queue, chunk)
	e.cond.Broadcast()
	return true
}

// StopPlayback discards every queued chunk and unblocks pending producers.
func (e *Engine) StopPlayback() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = nil
	e.flushGen++
	e.cond.Broadcast()
}

// WaitPlaybackDrained blocks until the queue is empty and the writer is idle,
// or ctx is cancelled.
func (e *Engine) WaitPlaybackDrained(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	for (len(e.queue) > 0 || e.writing) && !e.closed && ctx.Err() == nil {
		e.cond.Wait()
	}
	return ctx.Err()
}

func (e *Engine) writeLoop() {
	e.mu.Lock()
	for {
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		chunk := e.queue[0]
		e.queue = e.queue[1:]
		e.writing = true
		e.mu.Unlock()

		var err error
		if e.out != nil {
			_, err = e.out.Write(chunk)
		}

		e.mu.Lock()
		e.writing = false
		if err != nil {
			e.failed = true
			slog.Error("audio output write failed", "err", err)
		}
		e.cond.Broadcast()
	}
}

// Close stops capture and playback and closes the frames channel. Safe to
// call more than once.
func (e *Engine) Close() error {
	_ = e.StopCapture()

	e.mu.Lock()
	e.closed = true
	e.queue = nil
	e.cond.Broadcast()
	e.mu.Unlock()

	e.framesOnce.Do(func() { close(e.frames) })
	return nil
}
