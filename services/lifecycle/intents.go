package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tradeforge/pkg/db"
)

const intentColumns = `id, bot_run_id, intent_id, order_link_id, type, side, qty, price, state, order_id, meta, created_at, updated_at`

// CreateIntentParams are the caller-supplied inputs of intent creation.
type CreateIntentParams struct {
	IntentID string
	Type     string
	Side     string
	Qty      float64
	Price    *float64
	Meta     map[string]any
}

func (p CreateIntentParams) validate() error {
	if p.IntentID == "" {
		return &ValidationError{Field: "intent_id", Reason: "must not be empty"}
	}
	if p.Type == "" {
		return &ValidationError{Field: "type", Reason: "must not be empty"}
	}
	if p.Side == "" {
		return &ValidationError{Field: "side", Reason: "must not be empty"}
	}
	if p.Qty <= 0 {
		return &ValidationError{Field: "qty", Reason: "must be a positive number"}
	}
	return nil
}

// CreateIntent records an intent for a run, idempotently keyed on
// (run, intent_id). Repeated calls with the same key return the existing
// record unchanged, including when two callers race: the loser of the
// insert re-fetches the winner's row instead of surfacing an error. Every
// new intent gets a fresh globally unique order link id that downstream
// execution hands to the exchange as the client order id.
func (e *Engine) CreateIntent(ctx context.Context, runID uuid.UUID, params CreateIntentParams) (Intent, bool, error) {
	if err := params.validate(); err != nil {
		return Intent{}, false, err
	}

	if _, err := e.GetRun(ctx, runID); err != nil {
		return Intent{}, false, err
	}

	existing, err := e.getIntent(ctx, runID, params.IntentID)
	if err == nil {
		return existing, false, nil
	}
	var notFound *IntentNotFoundError
	if !errors.As(err, &notFound) {
		return Intent{}, false, err
	}

	meta := params.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Intent{}, false, err
	}

	now := time.Now().UTC()
	var intent Intent
	err = db.Get(ctx, e.pool, &intent, `
        INSERT INTO bot_intents (id, bot_run_id, intent_id, order_link_id, type, side, qty, price, state, meta, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $11)
        RETURNING `+intentColumns,
		uuid.New(), runID, params.IntentID, uuid.New(), params.Type, params.Side,
		params.Qty, params.Price, IntentPending, string(metaJSON), now)
	if err != nil {
		if db.IsUniqueViolation(err) {
			// Lost the creation race; the winner's row is the result.
			raced, fetchErr := e.getIntent(ctx, runID, params.IntentID)
			if fetchErr != nil {
				return Intent{}, false, fetchErr
			}
			return raced, false, nil
		}
		return Intent{}, false, err
	}

	return intent, true, nil
}

// AdvanceIntent moves a non-terminal intent to a new state, optionally
// recording the downstream order id and merging metadata additively.
// Terminal intents are immutable; advancing one fails with a conflict.
func (e *Engine) AdvanceIntent(ctx context.Context, runID uuid.UUID, intentID string, newState IntentState, orderID *string, meta map[string]any) (Intent, error) {
	intent, err := e.getIntent(ctx, runID, intentID)
	if err != nil {
		return Intent{}, err
	}

	if IsTerminalIntent(intent.State) {
		return Intent{}, &ConflictError{Reason: "intent is already in terminal state: " + string(intent.State)}
	}

	merged := intent.Meta
	if merged == nil {
		merged = map[string]any{}
	}
	for k, v := range meta {
		merged[k] = v
	}
	metaJSON, err := json.Marshal(merged)
	if err != nil {
		return Intent{}, err
	}

	if orderID == nil {
		orderID = intent.OrderID
	}

	var updated Intent
	err = db.Get(ctx, e.pool, &updated, `
        UPDATE bot_intents
        SET state = $2, order_id = $3, meta = $4::jsonb, updated_at = $5
        WHERE id = $1
        RETURNING `+intentColumns,
		intent.ID, newState, orderID, string(metaJSON), time.Now().UTC())
	if err != nil {
		return Intent{}, err
	}
	return updated, nil
}

// ListIntents returns a run's intents in creation order, optionally
// filtered by state.
func (e *Engine) ListIntents(ctx context.Context, runID uuid.UUID, state *IntentState) ([]Intent, error) {
	if _, err := e.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	query := `SELECT ` + intentColumns + ` FROM bot_intents WHERE bot_run_id = $1`
	args := []any{runID}
	if state != nil {
		query += ` AND state = $2`
		args = append(args, *state)
	}
	query += ` ORDER BY created_at ASC`

	intents := []Intent{}
	if err := db.Select(ctx, e.pool, &intents, query, args...); err != nil {
		return nil, err
	}
	return intents, nil
}

func (e *Engine) getIntent(ctx context.Context, runID uuid.UUID, intentID string) (Intent, error) {
	var intent Intent
	err := db.Get(ctx, e.pool, &intent, `
        SELECT `+intentColumns+` FROM bot_intents WHERE bot_run_id = $1 AND intent_id = $2`,
		runID, intentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Intent{}, &IntentNotFoundError{RunID: runID, IntentID: intentID}
		}
		return Intent{}, err
	}
	return intent, nil
}
