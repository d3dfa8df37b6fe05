package worker

import (
	"fmt"
	"os"
	"time"
)

// Config controls the poll loop and lease policies. Defaults mirror the
// reference deployment; every knob is overridable through the environment
// (see services/api/cmd/trade-api).
type Config struct {
	// WorkerID identifies this worker on leases it acquires. Set once at
	// startup, read-only thereafter.
	WorkerID string `env:"WORKER_ID"`

	PollInterval      time.Duration `env:"WORKER_POLL_INTERVAL,default=4s"`
	LeaseDuration     time.Duration `env:"WORKER_LEASE_DURATION,default=30s"`
	MaxRunDuration    time.Duration `env:"WORKER_MAX_RUN_DURATION,default=4h"`
	Staleness         time.Duration `env:"WORKER_STALENESS,default=60s"`
	ReconcileInterval time.Duration `env:"WORKER_RECONCILE_INTERVAL,default=60s"`

	// ActivationBatch bounds how many QUEUED runs one cycle picks up;
	// StopBatch bounds STOPPING completions per cycle.
	ActivationBatch int `env:"WORKER_ACTIVATION_BATCH,default=5"`
	StopBatch       int `env:"WORKER_STOP_BATCH,default=10"`

	// StartDelay and SyncDelay bound the initialization work between
	// activation checkpoints.
	StartDelay time.Duration `env:"WORKER_START_DELAY,default=800ms"`
	SyncDelay  time.Duration `env:"WORKER_SYNC_DELAY,default=1200ms"`
}

// Normalize fills zero values with defaults and derives a process-unique
// worker id when none is configured.
func (c *Config) Normalize() {
	if c.WorkerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "local"
		}
		c.WorkerID = fmt.Sprintf("worker-%s-%d", host, os.Getpid())
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 4 * time.Second
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 30 * time.Second
	}
	if c.MaxRunDuration <= 0 {
		c.MaxRunDuration = 4 * time.Hour
	}
	if c.Staleness <= 0 {
		c.Staleness = 60 * time.Second
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 60 * time.Second
	}
	if c.ActivationBatch <= 0 {
		c.ActivationBatch = 5
	}
	if c.StopBatch <= 0 {
		c.StopBatch = 10
	}
	if c.StartDelay <= 0 {
		c.StartDelay = 800 * time.Millisecond
	}
	if c.SyncDelay <= 0 {
		c.SyncDelay = 1200 * time.Millisecond
	}
}
