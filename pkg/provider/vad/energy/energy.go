// Package energy implements a lightweight RMS-energy voice activity detector.
//
// It is not a neural VAD; it classifies frames by comparing smoothed RMS
// energy against an adaptive noise floor. Good enough to gate STT streaming
// in quiet environments, and dependency-free, which makes it the default
// detector when no external model is configured.
package energy

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/unamentis/unamentis/pkg/provider/vad"
)

const (
	// defaultRatio is the multiple of the noise floor at which a frame is
	// considered speech.
	defaultRatio = 3.0

	// floorAdapt is the exponential smoothing factor for the noise floor.
	// Small so that speech does not drag the floor up.
	floorAdapt = 0.02

	// initialFloor seeds the noise floor before any frames have been seen,
	// expressed as normalised RMS.
	initialFloor = 0.004
)

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithSpeechRatio sets the speech-to-noise-floor ratio. Higher values reduce
// false positives at the cost of clipping quiet speech onsets. Default 3.0.
func WithSpeechRatio(r float64) Option {
	return func(d *Detector) { d.ratio = r }
}

// Detector is an RMS-energy VAD over 16-bit little-endian PCM frames.
// It is stateful and must not be shared across audio streams.
type Detector struct {
	ratio float64
	floor float64
}

// Compile-time interface assertion.
var _ vad.Detector = (*Detector)(nil)

// New creates a Detector with the default noise-floor seed.
func New(opts ...Option) *Detector {
	d := &Detector{ratio: defaultRatio, floor: initialFloor}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ProcessFrame implements vad.Detector.
func (d *Detector) ProcessFrame(frame []byte) (vad.Result, error) {
	start := time.Now()
	if len(frame) == 0 || len(frame)%2 != 0 {
		return vad.Result{}, errors.New("energy vad: frame must be non-empty 16-bit PCM")
	}

	var sum float64
	n := len(frame) / 2
	for i := 0; i < len(frame); i += 2 {
		s := int16(binary.LittleEndian.Uint16(frame[i:]))
		f := float64(s) / 32768.0
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(n))

	// Adapt the floor only on frames that look like background noise so the
	// estimate does not chase speech energy.
	if rms < d.floor*d.ratio {
		d.floor = (1-floorAdapt)*d.floor + floorAdapt*rms
		if d.floor < 1e-6 {
			d.floor = 1e-6
		}
	}

	// Map the energy ratio onto [0,1]: 1.0 at ratio*floor and above,
	// proportional below.
	prob := rms / (d.floor * d.ratio)
	if prob > 1 {
		prob = 1
	}

	return vad.Result{
		IsSpeech:       rms >= d.floor*d.ratio,
		Probability:    prob,
		ProcessingTime: time.Since(start),
	}, nil
}

// Reset restores the initial noise floor.
func (d *Detector) Reset() {
	d.floor = initialFloor
}
