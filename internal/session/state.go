package session

// State is the orchestrator's state-machine value. Exactly one State holds at
// any instant; transitions happen only under the orchestrator's turn lock.
type State int

const (
	// StateIdle means a session may be active but no turn is executing.
	StateIdle State = iota

	// StateUserSpeaking means sustained speech was detected and audio is
	// streaming to the STT provider.
	StateUserSpeaking

	// StateProcessingUtterance is the brief window between STT finalisation
	// and the start of LLM generation.
	StateProcessingUtterance

	// StateAiThinking means an LLM stream is in flight but no audio has been
	// played yet.
	StateAiThinking

	// StateAiSpeaking means synthesised audio is being queued for playback.
	StateAiSpeaking

	// StateInterrupted is the transient barge-in state while the previous
	// turn's tasks are cancelled and playback is flushed.
	StateInterrupted

	// StatePaused means capture and playback are stopped but the session and
	// its transcript are retained.
	StatePaused

	// StateError means an unrecoverable fault occurred. An explicit
	// ResumeSession or StartSession is required to leave it.
	StateError
)

var stateNames = map[State]string{
	StateIdle:                "idle",
	StateUserSpeaking:        "user_speaking",
	StateProcessingUtterance: "processing_utterance",
	StateAiThinking:          "ai_thinking",
	StateAiSpeaking:          "ai_speaking",
	StateInterrupted:         "interrupted",
	StatePaused:              "paused",
	StateError:               "error",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// turnInFlight reports whether a turn is currently executing, i.e. whether
// SendTextMessage must be rejected and VAD events must not start a new turn.
func (s State) turnInFlight() bool {
	switch s {
	case StateUserSpeaking, StateProcessingUtterance, StateAiThinking, StateAiSpeaking, StateInterrupted:
		return true
	}
	return false
}
