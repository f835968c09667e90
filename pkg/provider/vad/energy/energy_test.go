package energy_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/unamentis/unamentis/pkg/provider/vad/energy"
)

// pcmSine builds a 16-bit PCM frame containing a sine wave at the given
// amplitude (0.0–1.0).
func pcmSine(samples int, amplitude float64) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*float64(i)/64)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*32767)))
	}
	return buf
}

// pcmSilence builds a near-silent frame with a small DC-free noise floor.
func pcmSilence(samples int) []byte {
	return pcmSine(samples, 0.001)
}

func TestProcessFrame_SpeechVsSilence(t *testing.T) {
	t.Parallel()
	d := energy.New()

	// Establish a noise floor with quiet frames.
	for i := 0; i < 20; i++ {
		if _, err := d.ProcessFrame(pcmSilence(192)); err != nil {
			t.Fatalf("silence frame %d: %v", i, err)
		}
	}

	res, err := d.ProcessFrame(pcmSine(192, 0.5))
	if err != nil {
		t.Fatalf("loud frame: %v", err)
	}
	if !res.IsSpeech {
		t.Errorf("loud frame: IsSpeech = false, want true (probability %v)", res.Probability)
	}
	if res.Probability != 1 {
		t.Errorf("loud frame probability = %v, want clamped to 1", res.Probability)
	}

	res, err = d.ProcessFrame(pcmSilence(192))
	if err != nil {
		t.Fatalf("quiet frame: %v", err)
	}
	if res.IsSpeech {
		t.Errorf("quiet frame: IsSpeech = true, want false (probability %v)", res.Probability)
	}
}

func TestProcessFrame_RejectsMalformedFrames(t *testing.T) {
	t.Parallel()
	d := energy.New()

	for _, frame := range [][]byte{nil, {}, {0x01}} {
		if _, err := d.ProcessFrame(frame); err == nil {
			t.Errorf("ProcessFrame(%v): want error, got nil", frame)
		}
	}
}

func TestReset_RestoresNoiseFloor(t *testing.T) {
	t.Parallel()
	d := energy.New()

	// Drive the floor up with sustained moderate energy that still adapts.
	for i := 0; i < 200; i++ {
		_, _ = d.ProcessFrame(pcmSine(192, 0.01))
	}
	d.Reset()

	// Right after reset, a moderately loud frame must classify as speech again.
	res, err := d.ProcessFrame(pcmSine(192, 0.3))
	if err != nil {
		t.Fatalf("ProcessFrame after Reset: %v", err)
	}
	if !res.IsSpeech {
		t.Errorf("after Reset: IsSpeech = false, want true")
	}
}
