package api

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tradeforge/services/archive"
	"tradeforge/services/lifecycle"
)

const defaultLeaseDuration = 30 * time.Second

// Core is the lifecycle surface the HTTP layer depends on. It is satisfied
// by *lifecycle.Engine.
type Core interface {
	CreateBot(ctx context.Context, name, symbol string) (lifecycle.Bot, error)
	GetBot(ctx context.Context, botID uuid.UUID) (lifecycle.Bot, error)
	ListBots(ctx context.Context) ([]lifecycle.Bot, error)

	CreateRun(ctx context.Context, botID uuid.UUID) (lifecycle.Run, error)
	GetRun(ctx context.Context, runID uuid.UUID) (lifecycle.Run, error)
	ListRuns(ctx context.Context, botID uuid.UUID) ([]lifecycle.Run, error)
	Transition(ctx context.Context, runID uuid.UUID, to lifecycle.RunState, opts lifecycle.TransitionOptions) (lifecycle.Run, error)
	StopRun(ctx context.Context, runID uuid.UUID, message string) (lifecycle.Run, error)
	StopAll(ctx context.Context, botID *uuid.UUID) (lifecycle.StopAllResult, error)
	Heartbeat(ctx context.Context, runID uuid.UUID, workerID string, leaseDuration time.Duration) (lifecycle.Run, error)
	ListEvents(ctx context.Context, runID uuid.UUID, after *time.Time, limit int) ([]lifecycle.Event, error)

	CreateIntent(ctx context.Context, runID uuid.UUID, params lifecycle.CreateIntentParams) (lifecycle.Intent, bool, error)
	AdvanceIntent(ctx context.Context, runID uuid.UUID, intentID string, newState lifecycle.IntentState, orderID *string, meta map[string]any) (lifecycle.Intent, error)
	ListIntents(ctx context.Context, runID uuid.UUID, state *lifecycle.IntentState) ([]lifecycle.Intent, error)

	Reconcile(ctx context.Context, params lifecycle.ReconcileParams) (lifecycle.ReconcileResult, error)
}

// RunArchiver exports a run's audit trail to object storage.
type RunArchiver interface {
	ExportRun(ctx context.Context, runID uuid.UUID) (archive.Export, error)
}

// Notifier publishes run lifecycle notifications on the event bus. It is
// satisfied by *bus.Bus.
type Notifier interface {
	Publish(ctx context.Context, subject string, v any) error
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	LeaseDuration time.Duration

	// Notifier is optional; without it no notifications are published.
	Notifier Notifier
}

// API wires the lifecycle core and configuration for HTTP handlers.
type API struct {
	core     Core
	archiver RunArchiver
	ready    func(context.Context) error
	config   Config
}

// New initialises the API layer. archiver and ready are optional; without
// an archiver the archive endpoint responds 424, and without a readiness
// probe /readyz always succeeds.
func New(core Core, archiver RunArchiver, ready func(context.Context) error, cfg Config) (*API, error) {
	if core == nil {
		return nil, errors.New("core is required")
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}

	return &API{
		core:     core,
		archiver: archiver,
		ready:    ready,
		config:   cfg,
	}, nil
}
