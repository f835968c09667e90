package session

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by the orchestrator's public operations.
var (
	// ErrNoSession is returned when an operation requires an active session
	// but none exists.
	ErrNoSession = errors.New("session: no active session")

	// ErrTurnInFlight is returned by SendTextMessage while a turn is already
	// executing. Callers must wait for the machine to return to idle.
	ErrTurnInFlight = errors.New("session: a turn is already in flight")

	// ErrNotPaused is returned by ResumeSession when the machine is neither
	// paused nor in the error state.
	ErrNotPaused = errors.New("session: not paused")
)

// FaultKind partitions collaborator failures into the categories the
// orchestrator acts on. Every error crossing the collaborator boundary is
// translated into exactly one of these.
type FaultKind int

const (
	// FaultRecoverable covers network errors, rate limits and timeouts from
	// the streaming providers. The turn is aborted and the machine returns to
	// idle; the caller may retry with a new turn.
	FaultRecoverable FaultKind = iota

	// FaultCancelled is the expected outcome of barge-in, pause and stop.
	// It is not logged as an error and unwinds silently.
	FaultCancelled

	// FaultUnrecoverable covers audio engine failures and faults raised while
	// a cancellation was already unwinding. The machine enters the error
	// state until explicitly cleared.
	FaultUnrecoverable
)

func (k FaultKind) String() string {
	switch k {
	case FaultRecoverable:
		return "recoverable"
	case FaultCancelled:
		return "cancelled"
	case FaultUnrecoverable:
		return "unrecoverable"
	}
	return "unknown"
}

// Fault is a collaborator error translated at the orchestrator boundary.
// Raw provider errors never escape the orchestrator's public operations.
type Fault struct {
	Kind FaultKind

	// Op names the pipeline stage that failed: "stt", "llm", "tts", "audio".
	Op string

	Err error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("session: %s fault in %s: %v", f.Kind, f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// recoverableFault wraps err as a recoverable provider fault.
func recoverableFault(op string, err error) *Fault {
	return &Fault{Kind: FaultRecoverable, Op: op, Err: err}
}

// unrecoverableFault wraps err as an unrecoverable fault.
func unrecoverableFault(op string, err error) *Fault {
	return &Fault{Kind: FaultUnrecoverable, Op: op, Err: err}
}

// classifyFault translates an arbitrary error from a collaborator call into a
// Fault. Context cancellation maps to FaultCancelled; an error that is already
// a Fault keeps its classification; everything else is recoverable. Audio
// engine failures are classified at the call site via [unrecoverableFault]
// because they are indistinguishable from provider errors by type alone.
func classifyFault(op string, err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.Canceled) {
		return &Fault{Kind: FaultCancelled, Op: op, Err: err}
	}
	return recoverableFault(op, err)
}
