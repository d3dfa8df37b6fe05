package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tradeforge/pkg/db"
)

// TransitionOptions carries the optional inputs of a transition.
type TransitionOptions struct {
	// EventType overrides the audit event type; defaults to RUN_<to>.
	EventType string
	// Message is recorded in the event payload.
	Message string
	// Meta is merged into the event payload.
	Meta map[string]any
	// StartedAt overrides the timestamp set when transitioning to RUNNING.
	StartedAt *time.Time
	// StoppedAt overrides the timestamp set on terminal transitions.
	StoppedAt *time.Time
	// ErrorCode is recorded on failure-class terminal transitions.
	ErrorCode string
}

// Transition atomically moves a run to a new state and appends the audit
// event in the same transaction. It is the sole writer of the run's state
// column and the single guard of the transition graph; callers never
// re-implement the edge check.
//
// Fails with *RunNotFoundError if the run does not exist, and with
// *InvalidTransitionError if the edge is not allowed. There are no retries
// at this layer; the caller decides whether an invalid transition is a
// fatal bug or an expected race.
func (e *Engine) Transition(ctx context.Context, runID uuid.UUID, to RunState, opts TransitionOptions) (Run, error) {
	run, err := e.GetRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}

	from := run.State
	if !IsValidTransition(from, to) {
		return Run{}, &InvalidTransitionError{From: from, To: to}
	}

	now := time.Now().UTC()

	eventType := opts.EventType
	if eventType == "" {
		eventType = EventTypeFor(to)
	}
	message := opts.Message
	if message == "" {
		message = "State transition: " + string(from) + " -> " + string(to)
	}

	payload := map[string]any{
		"from":    string(from),
		"to":      string(to),
		"message": message,
		"at":      now.Format(time.RFC3339Nano),
	}
	for k, v := range opts.Meta {
		payload[k] = v
	}

	startedAt := run.StartedAt
	if to == StateRunning {
		startedAt = &now
		if opts.StartedAt != nil {
			startedAt = opts.StartedAt
		}
	}

	stoppedAt := run.StoppedAt
	errorCode := run.ErrorCode
	if IsTerminal(to) {
		stoppedAt = &now
		if opts.StoppedAt != nil {
			stoppedAt = opts.StoppedAt
		}
		if opts.ErrorCode != "" {
			code := opts.ErrorCode
			errorCode = &code
		}
	}

	var updated Run
	err = db.Tx(ctx, e.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            UPDATE bot_runs
            SET state = $2, started_at = $3, stopped_at = $4, error_code = $5, updated_at = $6
            WHERE id = $1
            RETURNING `+runColumns,
			runID, to, startedAt, stoppedAt, errorCode, now)
		if err := row.Scan(
			&updated.ID, &updated.BotID, &updated.Symbol, &updated.State,
			&updated.LeaseOwner, &updated.LeaseUntil,
			&updated.StartedAt, &updated.StoppedAt, &updated.ErrorCode,
			&updated.CreatedAt, &updated.UpdatedAt,
		); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &RunNotFoundError{RunID: runID}
			}
			return err
		}

		return insertEvent(ctx, tx, runID, now, eventType, payload)
	})
	if err != nil {
		return Run{}, err
	}

	return updated, nil
}

// StopRun drives a run toward STOPPED on behalf of an operator. When
// STOPPING is reachable from the current state the run passes through it;
// otherwise STOPPED is attempted directly and the transition graph decides
// whether the request conflicts.
func (e *Engine) StopRun(ctx context.Context, runID uuid.UUID, message string) (Run, error) {
	run, err := e.GetRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	if IsTerminal(run.State) {
		return Run{}, &ConflictError{Reason: "run is already in terminal state: " + string(run.State)}
	}

	if message == "" {
		message = "Stop requested"
	}

	if IsValidTransition(run.State, StateStopping) {
		if _, err := e.Transition(ctx, runID, StateStopping, TransitionOptions{Message: message}); err != nil {
			return Run{}, err
		}
	}
	return e.Transition(ctx, runID, StateStopped, TransitionOptions{Message: "Run stopped"})
}

// StopAllResult reports the outcome of an emergency stop sweep.
type StopAllResult struct {
	Stopped []uuid.UUID `json:"stopped"`
	Errors  []RunError  `json:"errors"`
	Total   int         `json:"total"`
}

// RunError pairs a run id with the error encountered while acting on it.
type RunError struct {
	RunID uuid.UUID `json:"run_id"`
	Error string    `json:"error"`
}

// StopAll force-stops every active run, optionally bounded to one bot. A
// failure on one run does not block the others.
func (e *Engine) StopAll(ctx context.Context, botID *uuid.UUID) (StopAllResult, error) {
	query := `SELECT ` + runColumns + ` FROM bot_runs WHERE state NOT IN ($1, $2, $3, $4)`
	args := []any{StateStopped, StateFailed, StateTimedOut, StateCreated}
	if botID != nil {
		query += ` AND bot_id = $5`
		args = append(args, *botID)
	}

	active := []Run{}
	if err := db.Select(ctx, e.pool, &active, query, args...); err != nil {
		return StopAllResult{}, err
	}

	result := StopAllResult{Stopped: []uuid.UUID{}, Errors: []RunError{}, Total: len(active)}
	for _, run := range active {
		if IsValidTransition(run.State, StateStopping) {
			if _, err := e.Transition(ctx, run.ID, StateStopping, TransitionOptions{Message: "Stop All requested"}); err != nil {
				result.Errors = append(result.Errors, RunError{RunID: run.ID, Error: err.Error()})
				continue
			}
		}
		if _, err := e.Transition(ctx, run.ID, StateStopped, TransitionOptions{Message: "Stopped by Stop All"}); err != nil {
			result.Errors = append(result.Errors, RunError{RunID: run.ID, Error: err.Error()})
			continue
		}
		result.Stopped = append(result.Stopped, run.ID)
	}

	return result, nil
}
