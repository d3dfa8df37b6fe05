package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeforge/pkg/db"
)

// Bot is the owning entity of runs. Bot management beyond this minimal
// surface (strategies, credentials, workspaces) lives outside the core.
type Bot struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Symbol    string    `json:"symbol" db:"symbol"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Run is one execution attempt of a bot's strategy. The state column is
// written only by Engine.Transition; the lease columns only by Heartbeat,
// the worker's lease renewal, and activation.
type Run struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	BotID      uuid.UUID  `json:"bot_id" db:"bot_id"`
	Symbol     string     `json:"symbol" db:"symbol"`
	State      RunState   `json:"state" db:"state"`
	LeaseOwner *string    `json:"lease_owner" db:"lease_owner"`
	LeaseUntil *time.Time `json:"lease_until" db:"lease_until"`
	StartedAt  *time.Time `json:"started_at" db:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at" db:"stopped_at"`
	ErrorCode  *string    `json:"error_code" db:"error_code"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Event is one immutable audit record of a transition.
type Event struct {
	ID       uuid.UUID      `json:"id" db:"id"`
	BotRunID uuid.UUID      `json:"bot_run_id" db:"bot_run_id"`
	TS       time.Time      `json:"ts" db:"ts"`
	Type     string         `json:"type" db:"type"`
	Payload  map[string]any `json:"payload" db:"payload"`
}

// Intent records an action a run wants to take, keyed for idempotency.
type Intent struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	BotRunID    uuid.UUID      `json:"bot_run_id" db:"bot_run_id"`
	IntentID    string         `json:"intent_id" db:"intent_id"`
	OrderLinkID uuid.UUID      `json:"order_link_id" db:"order_link_id"`
	Type        string         `json:"type" db:"type"`
	Side        string         `json:"side" db:"side"`
	Qty         float64        `json:"qty" db:"qty"`
	Price       *float64       `json:"price" db:"price"`
	State       IntentState    `json:"state" db:"state"`
	OrderID     *string        `json:"order_id" db:"order_id"`
	Meta        map[string]any `json:"meta" db:"meta"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Engine owns every mutation of the run lifecycle. It is safe for
// concurrent use; each call is an independent read-check-write against the
// database, serialized per statement by Postgres.
type Engine struct {
	pool *pgxpool.Pool
}

// NewEngine creates an Engine bound to the provided pool.
func NewEngine(pool *pgxpool.Pool) (*Engine, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &Engine{pool: pool}, nil
}

const runColumns = `id, bot_id, symbol, state, lease_owner, lease_until, started_at, stopped_at, error_code, created_at, updated_at`

// GetRun fetches a run by id.
func (e *Engine) GetRun(ctx context.Context, runID uuid.UUID) (Run, error) {
	var run Run
	err := db.Get(ctx, e.pool, &run, `SELECT `+runColumns+` FROM bot_runs WHERE id = $1`, runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, &RunNotFoundError{RunID: runID}
		}
		return Run{}, err
	}
	return run, nil
}

// GetBot fetches a bot by id.
func (e *Engine) GetBot(ctx context.Context, botID uuid.UUID) (Bot, error) {
	var bot Bot
	err := db.Get(ctx, e.pool, &bot, `SELECT id, name, symbol, created_at, updated_at FROM bots WHERE id = $1`, botID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bot{}, &BotNotFoundError{BotID: botID}
		}
		return Bot{}, err
	}
	return bot, nil
}

// CreateBot registers a bot. Name and symbol are required.
func (e *Engine) CreateBot(ctx context.Context, name, symbol string) (Bot, error) {
	if name == "" {
		return Bot{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if symbol == "" {
		return Bot{}, &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}

	var bot Bot
	err := db.Get(ctx, e.pool, &bot, `
        INSERT INTO bots (id, name, symbol, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)
        RETURNING id, name, symbol, created_at, updated_at`,
		uuid.New(), name, symbol, time.Now().UTC())
	if err != nil {
		return Bot{}, err
	}
	return bot, nil
}

// ListBots returns all bots ordered by creation time.
func (e *Engine) ListBots(ctx context.Context) ([]Bot, error) {
	bots := []Bot{}
	err := db.Select(ctx, e.pool, &bots, `SELECT id, name, symbol, created_at, updated_at FROM bots ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	return bots, nil
}

// ListRuns returns the runs for a bot, newest first.
func (e *Engine) ListRuns(ctx context.Context, botID uuid.UUID) ([]Run, error) {
	if _, err := e.GetBot(ctx, botID); err != nil {
		return nil, err
	}

	runs := []Run{}
	err := db.Select(ctx, e.pool, &runs, `SELECT `+runColumns+` FROM bot_runs WHERE bot_id = $1 ORDER BY created_at DESC`, botID)
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// CreateRun creates a run for a bot in CREATED and immediately advances it
// to QUEUED. At most one non-terminal run may exist per bot; a second
// creation attempt fails with a conflict. The check is made at creation
// time only, not retroactively.
func (e *Engine) CreateRun(ctx context.Context, botID uuid.UUID) (Run, error) {
	bot, err := e.GetBot(ctx, botID)
	if err != nil {
		return Run{}, err
	}

	var activeExists bool
	err = db.Get(ctx, e.pool, &activeExists, `
        SELECT EXISTS (
            SELECT 1 FROM bot_runs
            WHERE bot_id = $1 AND state NOT IN ($2, $3, $4)
        )`,
		bot.ID, StateStopped, StateFailed, StateTimedOut)
	if err != nil {
		return Run{}, err
	}
	if activeExists {
		return Run{}, &ConflictError{Reason: "an active run already exists for this bot"}
	}

	runID := uuid.New()
	now := time.Now().UTC()

	err = db.Tx(ctx, e.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO bot_runs (id, bot_id, symbol, state, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $5)`,
			runID, bot.ID, bot.Symbol, StateCreated, now)
		if err != nil {
			return err
		}

		return insertEvent(ctx, tx, runID, now, "RUN_CREATED", map[string]any{
			"from":    nil,
			"to":      string(StateCreated),
			"message": "Run created",
			"at":      now.Format(time.RFC3339Nano),
		})
	})
	if err != nil {
		return Run{}, err
	}

	if _, err := e.Transition(ctx, runID, StateQueued, TransitionOptions{
		Message: "Run queued for processing",
	}); err != nil {
		return Run{}, err
	}

	return e.GetRun(ctx, runID)
}

// Heartbeat renews the lease on a non-terminal run on behalf of workerID.
func (e *Engine) Heartbeat(ctx context.Context, runID uuid.UUID, workerID string, leaseDuration time.Duration) (Run, error) {
	if workerID == "" {
		return Run{}, &ValidationError{Field: "worker_id", Reason: "must not be empty"}
	}

	run, err := e.GetRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	if IsTerminal(run.State) {
		return Run{}, &ConflictError{Reason: "run is in terminal state: " + string(run.State)}
	}

	now := time.Now().UTC()
	leaseUntil := now.Add(leaseDuration)

	var updated Run
	err = db.Get(ctx, e.pool, &updated, `
        UPDATE bot_runs
        SET lease_owner = $2, lease_until = $3, updated_at = $4
        WHERE id = $1
        RETURNING `+runColumns,
		runID, workerID, leaseUntil, now)
	if err != nil {
		return Run{}, err
	}
	return updated, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, runID uuid.UUID, ts time.Time, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO bot_events (id, bot_run_id, ts, type, payload)
        VALUES ($1, $2, $3, $4, $5::jsonb)`,
		uuid.New(), runID, ts, eventType, string(data))
	return err
}
