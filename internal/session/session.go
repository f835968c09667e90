package session

import (
	"time"
	"unicode/utf8"
)

// Session is one active conversation instance. It is owned exclusively by the
// [Orchestrator]: created on StartSession, closed on StopSession. At most one
// Session is active per orchestrator.
type Session struct {
	// ID uniquely identifies the session.
	ID string

	// StartedAt is when the session was created.
	StartedAt time.Time

	// EndedAt is set by StopSession; zero while the session is active.
	EndedAt time.Time

	// TopicID and TopicTitle reference the curriculum topic active when the
	// session started, empty when no curriculum is configured.
	TopicID    string
	TopicTitle string

	// TurnCount is the number of completed turns.
	TurnCount int
}

// TurnMetrics is the per-turn measurement produced once when a turn
// completes. It is immutable after creation.
type TurnMetrics struct {
	// STTLatency is the time from the start of STT streaming to the final
	// transcript. Zero for text-initiated turns.
	STTLatency time.Duration

	// TimeToFirstToken is the LLM request-to-first-token latency.
	TimeToFirstToken time.Duration

	// TimeToFirstAudio is the TTS request-to-first-chunk latency. Zero when
	// the response produced no speech.
	TimeToFirstAudio time.Duration

	// EndToEnd is the time from utterance finalisation to playback drained.
	EndToEnd time.Duration

	// EstimatedCost is the estimated provider spend for the turn in USD.
	EstimatedCost float64
}

// CostModel estimates per-turn provider spend from observable stream sizes.
// Token counts are not reported by all streaming APIs, so LLM cost uses the
// common chars/4 token approximation. A zero rate disables that component.
type CostModel struct {
	// STTPerMinuteUSD is the transcription rate per audio minute.
	STTPerMinuteUSD float64

	// LLMPerMillionTokensUSD is the blended completion rate per 1M tokens.
	LLMPerMillionTokensUSD float64

	// TTSPerMillionCharsUSD is the synthesis rate per 1M input characters.
	TTSPerMillionCharsUSD float64
}

// TurnCost is the per-component cost estimate for a single turn.
type TurnCost struct {
	STT, LLM, TTS float64
}

// Total returns the summed estimate across components.
func (c TurnCost) Total() float64 { return c.STT + c.LLM + c.TTS }

// EstimateTurn computes component costs for a turn that transcribed audioDur
// of speech, generated llmText, and synthesised ttsText.
func (m CostModel) EstimateTurn(audioDur time.Duration, llmText, ttsText string) TurnCost {
	var c TurnCost
	if m.STTPerMinuteUSD > 0 && audioDur > 0 {
		c.STT = audioDur.Minutes() * m.STTPerMinuteUSD
	}
	if m.LLMPerMillionTokensUSD > 0 && llmText != "" {
		tokens := float64(utf8.RuneCountInString(llmText)) / 4
		c.LLM = tokens / 1e6 * m.LLMPerMillionTokensUSD
	}
	if m.TTSPerMillionCharsUSD > 0 && ttsText != "" {
		c.TTS = float64(utf8.RuneCountInString(ttsText)) / 1e6 * m.TTSPerMillionCharsUSD
	}
	return c
}
