// Package vad defines the Detector interface for voice activity detection.
//
// A detector classifies individual audio frames as speech or silence. It is
// synchronous by design: ProcessFrame returns immediately with a result, which
// makes it suitable for the always-on capture loop that gates STT input.
//
// Detectors are stateful (smoothing history, noise floor estimates) and a
// single Detector must not be shared across concurrent audio streams unless
// the implementation documents otherwise.
package vad

import "time"

// Result is the classification of a single audio frame.
type Result struct {
	// IsSpeech reports whether the frame was classified as speech.
	IsSpeech bool

	// Probability is the speech probability score in [0.0, 1.0].
	Probability float64

	// ProcessingTime is how long the classification took. Useful for keeping
	// an eye on whether VAD is eating into the frame budget.
	ProcessingTime time.Duration
}

// Detector classifies audio frames.
type Detector interface {
	// ProcessFrame analyses one frame of raw little-endian 16-bit PCM and
	// returns the detection result. It must not block; it is called inline in
	// the capture loop. Returns an error if the frame is malformed.
	ProcessFrame(frame []byte) (Result, error)

	// Reset clears accumulated detection state. Call when the audio stream is
	// interrupted or restarted so stale history does not bleed into the next
	// segment.
	Reset()
}
