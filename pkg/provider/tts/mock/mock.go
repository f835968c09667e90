// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify
// that the correct VoiceProfile and text fragments are passed to the TTS
// backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeChunks: [][]byte{[]byte("audio1"), []byte("audio2")},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
//	ch, _ := p.SynthesizeStream(ctx, textCh, voice)
package mock

import (
	"context"
	"sync"

	"github.com/unamentis/unamentis/pkg/provider/tts"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeChunks is the sequence of audio byte slices emitted on the
	// channel returned by SynthesizeStream. The first carries IsFirst, the
	// last carries IsLast.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned as the error from
	// SynthesizeStream instead of starting a channel.
	SynthesizeErr error

	// Hold, if non-nil, delays chunk emission until the channel is closed.
	// Lets tests freeze a turn in the synthesis phase.
	Hold chan struct{}

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall

	// Texts records, per SynthesizeStream call, the text fragments drained
	// from the input channel.
	Texts [][]string

	// ListVoicesCalls counts calls to ListVoices.
	ListVoicesCalls int
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// SynthesizeStream records the call and, if SynthesizeErr is nil, returns a
// channel that drains the text input, emits SynthesizeChunks, then closes.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan tts.Chunk, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Ctx: ctx, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	call := len(p.Texts)
	p.Texts = append(p.Texts, nil)
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	hold := p.Hold
	p.mu.Unlock()

	ch := make(chan tts.Chunk, len(chunks)+1)
	go func() {
		defer close(ch)
		// Drain the incoming text channel so the caller's forwarding
		// goroutine never blocks writing to it.
		go func() {
			for frag := range text {
				p.mu.Lock()
				p.Texts[call] = append(p.Texts[call], frag)
				p.mu.Unlock()
			}
		}()
		if hold != nil {
			select {
			case <-hold:
			case <-ctx.Done():
				return
			}
		}
		for i, audio := range chunks {
			out := tts.Chunk{
				Audio:   audio,
				IsFirst: i == 0,
				IsLast:  i == len(chunks)-1,
			}
			select {
			case <-ctx.Done():
				return
			case ch <- out:
			}
		}
	}()
	return ch, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// TextsForCall returns a copy of the text fragments drained during the i-th
// SynthesizeStream call, or nil if no such call happened.
func (p *Provider) TextsForCall(i int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.Texts) {
		return nil
	}
	out := make([]string, len(p.Texts[i]))
	copy(out, p.Texts[i])
	return out
}

// CallCount returns the number of SynthesizeStream calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeStreamCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeStreamCalls = nil
	p.Texts = nil
	p.ListVoicesCalls = 0
}
