package lifecycle

import (
	"fmt"

	"github.com/google/uuid"
)

// BotNotFoundError indicates the referenced bot does not exist.
type BotNotFoundError struct {
	BotID uuid.UUID
}

func (e *BotNotFoundError) Error() string {
	return fmt.Sprintf("bot not found: %s", e.BotID)
}

// RunNotFoundError indicates the referenced run does not exist.
type RunNotFoundError struct {
	RunID uuid.UUID
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}

// IntentNotFoundError indicates no intent exists for (run, intentId).
type IntentNotFoundError struct {
	RunID    uuid.UUID
	IntentID string
}

func (e *IntentNotFoundError) Error() string {
	return fmt.Sprintf("intent not found: run %s intent %q", e.RunID, e.IntentID)
}

// InvalidTransitionError indicates a disallowed edge was requested. The
// engine never coerces it to a different edge; callers decide whether it is
// a fatal bug or an expected race.
type InvalidTransitionError struct {
	From RunState
	To   RunState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// ConflictError indicates an operation against a run or intent already in a
// terminal or otherwise incompatible state.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// ValidationError indicates malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
