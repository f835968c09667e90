// Package mock provides a test double for the vad.Detector interface.
package mock

import (
	"sync"

	"github.com/unamentis/unamentis/pkg/provider/vad"
)

// Detector is a scripted mock implementation of vad.Detector.
//
// Results are returned in order; once the script is exhausted, Default is
// returned for every subsequent frame. All methods are safe for concurrent use.
type Detector struct {
	mu sync.Mutex

	// Results is the scripted sequence of results to return.
	Results []vad.Result

	// Default is returned once Results is exhausted.
	Default vad.Result

	// Err, if non-nil, is returned by every ProcessFrame call.
	Err error

	// Frames records a copy of every frame passed to ProcessFrame.
	Frames [][]byte

	// ResetCalls counts Reset invocations.
	ResetCalls int

	next int
}

// Compile-time interface assertion.
var _ vad.Detector = (*Detector)(nil)

// ProcessFrame records the frame and returns the next scripted result.
func (d *Detector) ProcessFrame(frame []byte) (vad.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.Frames = append(d.Frames, cp)
	if d.Err != nil {
		return vad.Result{}, d.Err
	}
	if d.next < len(d.Results) {
		r := d.Results[d.next]
		d.next++
		return r, nil
	}
	return d.Default, nil
}

// Reset records the call and rewinds the script.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCalls++
	d.next = 0
}
