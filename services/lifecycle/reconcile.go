package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tradeforge/pkg/db"
)

// DefaultStaleness is how long a leaseless active run may go without an
// update before reconciliation considers its worker dead. It deliberately
// equals two lease renewal periods: one missed renewal of slack.
const DefaultStaleness = 60 * time.Second

// ReconcileParams bounds a reconciliation sweep.
type ReconcileParams struct {
	// BotID limits the sweep to one bot's runs when non-nil.
	BotID *uuid.UUID
	// Staleness overrides DefaultStaleness when positive.
	Staleness time.Duration
}

// ReconcileResult reports a sweep's findings.
type ReconcileResult struct {
	StaleFound   int         `json:"stale_found"`
	MarkedFailed []uuid.UUID `json:"marked_failed"`
	Errors       []RunError  `json:"errors"`
	At           time.Time   `json:"at"`
}

// Reconcile detects runs whose owning worker has gone silent and force
// fails them. A run qualifies when it is in a leasable state and either its
// lease has expired or it never acquired one and has not been touched
// within the staleness window. This is the self-healing path for worker
// crashes; any actor may invoke it, on a schedule or on demand. A failure
// on one run does not block the rest of the sweep.
func (e *Engine) Reconcile(ctx context.Context, params ReconcileParams) (ReconcileResult, error) {
	staleness := params.Staleness
	if staleness <= 0 {
		staleness = DefaultStaleness
	}

	now := time.Now().UTC()
	query := `
        SELECT ` + runColumns + ` FROM bot_runs
        WHERE state IN ($1, $2, $3, $4)
          AND (lease_until < $5 OR (lease_until IS NULL AND updated_at < $6))`
	args := []any{StateStarting, StateSyncing, StateRunning, StateStopping, now, now.Add(-staleness)}
	if params.BotID != nil {
		query += ` AND bot_id = $7`
		args = append(args, *params.BotID)
	}

	stale := []Run{}
	if err := db.Select(ctx, e.pool, &stale, query, args...); err != nil {
		return ReconcileResult{}, err
	}

	result := ReconcileResult{
		StaleFound:   len(stale),
		MarkedFailed: []uuid.UUID{},
		Errors:       []RunError{},
		At:           now,
	}

	for _, run := range stale {
		meta := map[string]any{
			"lease_owner": run.LeaseOwner,
			"lease_until": run.LeaseUntil,
		}
		_, err := e.Transition(ctx, run.ID, StateFailed, TransitionOptions{
			EventType: "RUN_RECONCILED_FAILED",
			Message:   "Run marked FAILED by reconciliation (stale lease)",
			ErrorCode: ErrCodeStaleLease,
			Meta:      meta,
		})
		if err != nil {
			result.Errors = append(result.Errors, RunError{RunID: run.ID, Error: err.Error()})
			continue
		}
		result.MarkedFailed = append(result.MarkedFailed, run.ID)
	}

	return result, nil
}
