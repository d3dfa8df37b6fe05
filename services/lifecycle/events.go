package lifecycle

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"tradeforge/pkg/db"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 500
)

// ListEvents returns a run's audit events in ascending timestamp order.
// When after is non-nil only events strictly newer than it are returned;
// limit defaults to 100 and is capped at 500.
func (e *Engine) ListEvents(ctx context.Context, runID uuid.UUID, after *time.Time, limit int) ([]Event, error) {
	if _, err := e.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	query := `SELECT id, bot_run_id, ts, type, payload FROM bot_events WHERE bot_run_id = $1`
	args := []any{runID}
	if after != nil {
		query += ` AND ts > $2`
		args = append(args, *after)
	}
	query += ` ORDER BY ts ASC LIMIT ` + strconv.Itoa(limit)

	events := []Event{}
	if err := db.Select(ctx, e.pool, &events, query, args...); err != nil {
		return nil, err
	}
	return events, nil
}
