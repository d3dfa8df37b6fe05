package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tradeforge/pkg/bus"
	"tradeforge/services/lifecycle"
)

// Worker is the single logical orchestrator of run lifecycles. It polls on
// a fixed interval, activating QUEUED runs, completing STOPPING runs,
// timing out overlong runs, and renewing leases on runs it owns. Multiple
// workers may run the same loop concurrently (e.g. during a rolling
// deployment); the lease fields plus the re-read-before-advance checks in
// activation keep them from corrupting each other.
type Worker struct {
	engine *lifecycle.Engine
	orm    *gorm.DB
	bus    *bus.Bus
	cfg    Config
	log    zerolog.Logger

	activations sync.WaitGroup

	subsMu sync.Mutex
	subs   []io.Closer
}

// New creates a Worker. The bus is optional; without it lifecycle events
// are not published and no signals are consumed.
func New(engine *lifecycle.Engine, orm *gorm.DB, b *bus.Bus, cfg Config, log zerolog.Logger) (*Worker, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	cfg.Normalize()

	return &Worker{
		engine: engine,
		orm:    orm,
		bus:    b,
		cfg:    cfg,
		log:    log.With().Str("worker_id", cfg.WorkerID).Logger(),
	}, nil
}

// Run executes the poll loop until ctx is cancelled, then waits for
// in-flight activations to finish.
func (w *Worker) Run(ctx context.Context) error {
	if w.bus != nil {
		closer, err := w.bus.Subscribe(ctx, bus.SubjectSignals, "worker-signals", w.handleSignal)
		if err != nil {
			return err
		}
		w.subsMu.Lock()
		w.subs = append(w.subs, closer)
		w.subsMu.Unlock()
	}

	w.log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Dur("lease_duration", w.cfg.LeaseDuration).
		Msg("worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	lastReconcile := time.Time{}

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			w.activations.Wait()
			w.closeSubs()
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
			if time.Since(lastReconcile) >= w.cfg.ReconcileInterval {
				lastReconcile = time.Now()
				w.reconcile(ctx)
			}
		}
	}
}

// poll runs one cycle. Every step swallows its own errors: a single run's
// failure must never halt the shared loop.
func (w *Worker) poll(ctx context.Context) {
	w.activateQueued(ctx)
	w.completeStopping(ctx)
	w.timeoutExpired(ctx)
	w.renewLeases(ctx)
}

// activateQueued launches an independent activation task per QUEUED run.
// The cycle never waits on an activation.
func (w *Worker) activateQueued(ctx context.Context) {
	var queued []runModel
	err := w.orm.WithContext(ctx).
		Where("state = ?", lifecycle.StateQueued).
		Order("created_at ASC").
		Limit(w.cfg.ActivationBatch).
		Find(&queued).Error
	if err != nil {
		w.log.Error().Err(err).Msg("list queued runs")
		return
	}

	for _, run := range queued {
		runID := run.ID
		w.activations.Add(1)
		go func() {
			defer w.activations.Done()
			w.activateRun(ctx, runID)
		}()
	}
}

// activateRun drives one run QUEUED -> STARTING -> SYNCING -> RUNNING and
// acquires the lease. Before each advance it re-reads the run and aborts
// silently if another actor has moved it; that checkpoint, not a lock, is
// the guard against double-advancement. Errors are logged and swallowed so
// one run cannot take down the loop.
func (w *Worker) activateRun(ctx context.Context, runID uuid.UUID) {
	log := w.log.With().Stringer("run_id", runID).Logger()

	_, err := w.engine.Transition(ctx, runID, lifecycle.StateStarting, lifecycle.TransitionOptions{
		Message: "Worker picked up run, initializing",
	})
	if err != nil {
		log.Error().Err(err).Msg("activate: transition to STARTING")
		return
	}

	if err := sleepCtx(ctx, w.cfg.StartDelay); err != nil {
		return
	}
	run, err := w.engine.GetRun(ctx, runID)
	if err != nil {
		log.Error().Err(err).Msg("activate: re-read after start")
		return
	}
	if run.State != lifecycle.StateStarting {
		activationAbortsTotal.Inc()
		return
	}

	_, err = w.engine.Transition(ctx, runID, lifecycle.StateSyncing, lifecycle.TransitionOptions{
		Message: "Syncing market data",
	})
	if err != nil {
		log.Error().Err(err).Msg("activate: transition to SYNCING")
		return
	}

	if err := sleepCtx(ctx, w.cfg.SyncDelay); err != nil {
		return
	}
	run, err = w.engine.GetRun(ctx, runID)
	if err != nil {
		log.Error().Err(err).Msg("activate: re-read after sync")
		return
	}
	if run.State != lifecycle.StateSyncing {
		activationAbortsTotal.Inc()
		return
	}

	now := time.Now().UTC()
	running, err := w.engine.Transition(ctx, runID, lifecycle.StateRunning, lifecycle.TransitionOptions{
		Message:   "Bot is running",
		StartedAt: &now,
	})
	if err != nil {
		log.Error().Err(err).Msg("activate: transition to RUNNING")
		return
	}

	leaseUntil := now.Add(w.cfg.LeaseDuration)
	err = w.orm.WithContext(ctx).
		Model(&runModel{}).
		Where("id = ?", runID).
		Updates(map[string]any{
			"lease_owner": w.cfg.WorkerID,
			"lease_until": leaseUntil,
			"updated_at":  now,
		}).Error
	if err != nil {
		log.Error().Err(err).Msg("activate: acquire lease")
		return
	}

	activationsTotal.Inc()
	log.Info().Time("lease_until", leaseUntil).Msg("run activated")

	w.publish(ctx, bus.SubjectRunStarted, runLifecycleEvent{
		RunID: running.ID,
		BotID: running.BotID,
		State: string(running.State),
	})
}

// completeStopping advances STOPPING runs to STOPPED, synchronously and in
// a bounded batch.
func (w *Worker) completeStopping(ctx context.Context) {
	var stopping []runModel
	err := w.orm.WithContext(ctx).
		Where("state = ?", lifecycle.StateStopping).
		Limit(w.cfg.StopBatch).
		Find(&stopping).Error
	if err != nil {
		w.log.Error().Err(err).Msg("list stopping runs")
		return
	}

	for _, run := range stopping {
		current, err := w.engine.GetRun(ctx, run.ID)
		if err != nil || current.State != lifecycle.StateStopping {
			continue
		}
		stopped, err := w.engine.Transition(ctx, run.ID, lifecycle.StateStopped, lifecycle.TransitionOptions{
			Message: "Worker completed stop",
		})
		if err != nil {
			w.log.Error().Err(err).Stringer("run_id", run.ID).Msg("complete stop")
			continue
		}
		stopsTotal.Inc()
		w.publish(ctx, bus.SubjectRunFinished, runLifecycleEvent{
			RunID: stopped.ID,
			BotID: stopped.BotID,
			State: string(stopped.State),
		})
	}
}

// timeoutExpired fails RUNNING runs that have exceeded the max duration.
func (w *Worker) timeoutExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.cfg.MaxRunDuration)

	var expired []runModel
	err := w.orm.WithContext(ctx).
		Where("state = ? AND started_at < ?", lifecycle.StateRunning, cutoff).
		Find(&expired).Error
	if err != nil {
		w.log.Error().Err(err).Msg("list expired runs")
		return
	}

	for _, run := range expired {
		timedOut, err := w.engine.Transition(ctx, run.ID, lifecycle.StateTimedOut, lifecycle.TransitionOptions{
			Message:   "Run exceeded max duration of " + w.cfg.MaxRunDuration.String(),
			ErrorCode: lifecycle.ErrCodeMaxDurationExceeded,
		})
		if err != nil {
			w.log.Error().Err(err).Stringer("run_id", run.ID).Msg("timeout run")
			continue
		}
		timeoutsTotal.Inc()
		w.log.Info().Stringer("run_id", run.ID).Msg("run timed out")
		w.publish(ctx, bus.SubjectRunFinished, runLifecycleEvent{
			RunID:     timedOut.ID,
			BotID:     timedOut.BotID,
			State:     string(timedOut.State),
			ErrorCode: timedOut.ErrorCode,
		})
	}
}

// renewLeases extends leaseUntil on every RUNNING run this worker owns.
func (w *Worker) renewLeases(ctx context.Context) {
	now := time.Now().UTC()
	err := w.orm.WithContext(ctx).
		Model(&runModel{}).
		Where("lease_owner = ? AND state = ?", w.cfg.WorkerID, lifecycle.StateRunning).
		Updates(map[string]any{
			"lease_until": now.Add(w.cfg.LeaseDuration),
			"updated_at":  now,
		}).Error
	if err != nil {
		w.log.Error().Err(err).Msg("renew leases")
		return
	}
	leaseRenewalsTotal.Inc()
}

// reconcile sweeps for runs whose worker has gone silent.
func (w *Worker) reconcile(ctx context.Context) {
	result, err := w.engine.Reconcile(ctx, lifecycle.ReconcileParams{Staleness: w.cfg.Staleness})
	if err != nil {
		w.log.Error().Err(err).Msg("reconcile")
		return
	}
	if result.StaleFound > 0 {
		reconciledTotal.Add(float64(len(result.MarkedFailed)))
		w.log.Warn().
			Int("stale_found", result.StaleFound).
			Int("marked_failed", len(result.MarkedFailed)).
			Int("errors", len(result.Errors)).
			Msg("reconciled stale runs")
	}
	for _, failed := range result.MarkedFailed {
		code := lifecycle.ErrCodeStaleLease
		w.publish(ctx, bus.SubjectRunFinished, runLifecycleEvent{
			RunID:     failed,
			State:     string(lifecycle.StateFailed),
			ErrorCode: &code,
		})
	}
}

// handleSignal turns a trading signal from the bus into an intent. Signals
// for runs that are not RUNNING are dropped, not redelivered.
func (w *Worker) handleSignal(ctx context.Context, data []byte) error {
	var sig signalEvent
	if err := json.Unmarshal(data, &sig); err != nil {
		w.log.Error().Err(err).Msg("decode signal")
		return nil
	}
	if sig.RunID == uuid.Nil || sig.IntentID == "" {
		return nil
	}

	run, err := w.engine.GetRun(ctx, sig.RunID)
	if err != nil {
		var notFound *lifecycle.RunNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	if run.State != lifecycle.StateRunning {
		w.log.Debug().
			Stringer("run_id", sig.RunID).
			Str("state", string(run.State)).
			Msg("dropping signal for non-running run")
		return nil
	}

	_, _, err = w.engine.CreateIntent(ctx, sig.RunID, lifecycle.CreateIntentParams{
		IntentID: sig.IntentID,
		Type:     sig.Type,
		Side:     sig.Side,
		Qty:      sig.Qty,
		Price:    sig.Price,
		Meta:     sig.Meta,
	})
	if err != nil {
		var invalid *lifecycle.ValidationError
		if errors.As(err, &invalid) {
			w.log.Warn().Err(err).Stringer("run_id", sig.RunID).Msg("rejected signal")
			return nil
		}
		return err
	}
	return nil
}

func (w *Worker) publish(ctx context.Context, subject string, event runLifecycleEvent) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(ctx, subject, event); err != nil {
		w.log.Error().Err(err).Str("subject", subject).Msg("publish event")
	}
}

func (w *Worker) closeSubs() {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, sub := range w.subs {
		if sub != nil {
			_ = sub.Close()
		}
	}
	w.subs = nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
