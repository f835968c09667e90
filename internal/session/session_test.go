package session

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestCostModel_EstimateTurn(t *testing.T) {
	t.Parallel()
	m := CostModel{
		STTPerMinuteUSD:        0.006,
		LLMPerMillionTokensUSD: 10,
		TTSPerMillionCharsUSD:  50,
	}

	text := strings.Repeat("a", 400) // ~100 tokens
	c := m.EstimateTurn(30*time.Second, text, text)

	if math.Abs(c.STT-0.003) > 1e-9 {
		t.Errorf("STT cost: got %f, want 0.003", c.STT)
	}
	if math.Abs(c.LLM-0.001) > 1e-9 {
		t.Errorf("LLM cost: got %f, want 0.001", c.LLM)
	}
	if math.Abs(c.TTS-0.02) > 1e-9 {
		t.Errorf("TTS cost: got %f, want 0.02", c.TTS)
	}
	if math.Abs(c.Total()-(c.STT+c.LLM+c.TTS)) > 1e-12 {
		t.Error("Total should sum the components")
	}
}

func TestCostModel_ZeroRatesAndInputs(t *testing.T) {
	t.Parallel()
	var m CostModel
	c := m.EstimateTurn(time.Minute, "some text", "some text")
	if c.Total() != 0 {
		t.Errorf("zero rates should cost nothing, got %f", c.Total())
	}

	m = CostModel{STTPerMinuteUSD: 0.006, LLMPerMillionTokensUSD: 10, TTSPerMillionCharsUSD: 50}
	c = m.EstimateTurn(0, "", "")
	if c.Total() != 0 {
		t.Errorf("empty turn should cost nothing, got %f", c.Total())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := map[State]string{
		StateIdle:                "idle",
		StateUserSpeaking:        "user_speaking",
		StateProcessingUtterance: "processing_utterance",
		StateAiThinking:          "ai_thinking",
		StateAiSpeaking:          "ai_speaking",
		StateInterrupted:         "interrupted",
		StatePaused:              "paused",
		StateError:               "error",
		State(99):                "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestState_TurnInFlight(t *testing.T) {
	t.Parallel()
	inFlight := []State{StateUserSpeaking, StateProcessingUtterance, StateAiThinking, StateAiSpeaking, StateInterrupted}
	for _, s := range inFlight {
		if !s.turnInFlight() {
			t.Errorf("%v should be in flight", s)
		}
	}
	for _, s := range []State{StateIdle, StatePaused, StateError} {
		if s.turnInFlight() {
			t.Errorf("%v should not be in flight", s)
		}
	}
}
