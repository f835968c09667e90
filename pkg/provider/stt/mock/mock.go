// Package mock provides test doubles for the stt.Provider and
// stt.SessionHandle interfaces.
//
// Tests create a Provider, call the code under test, then drive recognition
// by emitting transcripts on the session returned from StartStream:
//
//	p := mock.NewProvider()
//	// ... orchestrator calls p.StartStream ...
//	sess := p.LastSession()
//	sess.Emit(stt.Transcript{Text: "hello", IsFinal: true})
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/unamentis/unamentis/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by StartStream instead of a session.
	StartErr error

	// StartCalls records the StreamConfig of every StartStream call.
	StartCalls []stt.StreamConfig

	sessions []*Session
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// NewProvider returns a ready-to-use mock provider.
func NewProvider() *Provider {
	return &Provider{}
}

// StartStream records the call and returns a new mock Session.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, cfg)
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := &Session{results: make(chan stt.Transcript, 16)}
	p.sessions = append(p.sessions, s)
	return s, nil
}

// LastSession returns the most recently opened session, or nil if StartStream
// has not been called.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// SessionCount returns the number of sessions opened so far.
func (p *Provider) SessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Session is a mock stt.SessionHandle driven by the test via Emit.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	// Audio records a copy of every chunk passed to SendAudio.
	Audio [][]byte

	results chan stt.Transcript
	closed  bool
}

// Compile-time interface assertion.
var _ stt.SessionHandle = (*Session)(nil)

// Emit delivers a transcript to the session's consumer. Emit after Close is a
// no-op so tests do not race with teardown.
func (s *Session) Emit(t stt.Transcript) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.results <- t
}

// SendAudio records the chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock stt: session closed")
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.Audio = append(s.Audio, cp)
	return nil
}

// Results returns the transcript channel fed by Emit.
func (s *Session) Results() <-chan stt.Transcript {
	return s.results
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes the Results channel. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.results)
	return nil
}
