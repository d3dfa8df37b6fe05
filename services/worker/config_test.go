package worker

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeDefaults(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	if cfg.WorkerID == "" || !strings.HasPrefix(cfg.WorkerID, "worker-") {
		t.Errorf("WorkerID = %q, want derived worker-<host>-<pid>", cfg.WorkerID)
	}
	if cfg.PollInterval != 4*time.Second {
		t.Errorf("PollInterval = %v, want 4s", cfg.PollInterval)
	}
	if cfg.LeaseDuration != 30*time.Second {
		t.Errorf("LeaseDuration = %v, want 30s", cfg.LeaseDuration)
	}
	if cfg.MaxRunDuration != 4*time.Hour {
		t.Errorf("MaxRunDuration = %v, want 4h", cfg.MaxRunDuration)
	}
	if cfg.Staleness != 60*time.Second {
		t.Errorf("Staleness = %v, want 60s", cfg.Staleness)
	}
	if cfg.ReconcileInterval != 60*time.Second {
		t.Errorf("ReconcileInterval = %v, want 60s", cfg.ReconcileInterval)
	}
	if cfg.ActivationBatch != 5 {
		t.Errorf("ActivationBatch = %d, want 5", cfg.ActivationBatch)
	}
	if cfg.StopBatch != 10 {
		t.Errorf("StopBatch = %d, want 10", cfg.StopBatch)
	}
	if cfg.StartDelay != 800*time.Millisecond {
		t.Errorf("StartDelay = %v, want 800ms", cfg.StartDelay)
	}
	if cfg.SyncDelay != 1200*time.Millisecond {
		t.Errorf("SyncDelay = %v, want 1200ms", cfg.SyncDelay)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		WorkerID:       "worker-test",
		PollInterval:   time.Second,
		LeaseDuration:  10 * time.Second,
		MaxRunDuration: time.Hour,
	}
	cfg.Normalize()

	if cfg.WorkerID != "worker-test" {
		t.Errorf("WorkerID = %q, want worker-test", cfg.WorkerID)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.LeaseDuration != 10*time.Second {
		t.Errorf("LeaseDuration = %v, want 10s", cfg.LeaseDuration)
	}
	if cfg.MaxRunDuration != time.Hour {
		t.Errorf("MaxRunDuration = %v, want 1h", cfg.MaxRunDuration)
	}
}

func TestStalenessCoversMissedRenewal(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	// One missed renewal of slack before a run is eligible for
	// reconciliation.
	if cfg.Staleness < 2*cfg.LeaseDuration {
		t.Errorf("Staleness %v < 2x LeaseDuration %v", cfg.Staleness, cfg.LeaseDuration)
	}
}
