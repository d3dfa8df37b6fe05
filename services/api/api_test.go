package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"tradeforge/services/lifecycle"
)

// stubCore satisfies Core with per-method hooks so each test controls only
// the calls it cares about.
type stubCore struct {
	createBot     func(ctx context.Context, name, symbol string) (lifecycle.Bot, error)
	getBot        func(ctx context.Context, botID uuid.UUID) (lifecycle.Bot, error)
	listBots      func(ctx context.Context) ([]lifecycle.Bot, error)
	createRun     func(ctx context.Context, botID uuid.UUID) (lifecycle.Run, error)
	getRun        func(ctx context.Context, runID uuid.UUID) (lifecycle.Run, error)
	listRuns      func(ctx context.Context, botID uuid.UUID) ([]lifecycle.Run, error)
	transition    func(ctx context.Context, runID uuid.UUID, to lifecycle.RunState, opts lifecycle.TransitionOptions) (lifecycle.Run, error)
	stopRun       func(ctx context.Context, runID uuid.UUID, message string) (lifecycle.Run, error)
	stopAll       func(ctx context.Context, botID *uuid.UUID) (lifecycle.StopAllResult, error)
	heartbeat     func(ctx context.Context, runID uuid.UUID, workerID string, leaseDuration time.Duration) (lifecycle.Run, error)
	listEvents    func(ctx context.Context, runID uuid.UUID, after *time.Time, limit int) ([]lifecycle.Event, error)
	createIntent  func(ctx context.Context, runID uuid.UUID, params lifecycle.CreateIntentParams) (lifecycle.Intent, bool, error)
	advanceIntent func(ctx context.Context, runID uuid.UUID, intentID string, newState lifecycle.IntentState, orderID *string, meta map[string]any) (lifecycle.Intent, error)
	listIntents   func(ctx context.Context, runID uuid.UUID, state *lifecycle.IntentState) ([]lifecycle.Intent, error)
	reconcile     func(ctx context.Context, params lifecycle.ReconcileParams) (lifecycle.ReconcileResult, error)
}

func (s *stubCore) CreateBot(ctx context.Context, name, symbol string) (lifecycle.Bot, error) {
	return s.createBot(ctx, name, symbol)
}

func (s *stubCore) GetBot(ctx context.Context, botID uuid.UUID) (lifecycle.Bot, error) {
	return s.getBot(ctx, botID)
}

func (s *stubCore) ListBots(ctx context.Context) ([]lifecycle.Bot, error) {
	return s.listBots(ctx)
}

func (s *stubCore) CreateRun(ctx context.Context, botID uuid.UUID) (lifecycle.Run, error) {
	return s.createRun(ctx, botID)
}

func (s *stubCore) GetRun(ctx context.Context, runID uuid.UUID) (lifecycle.Run, error) {
	return s.getRun(ctx, runID)
}

func (s *stubCore) ListRuns(ctx context.Context, botID uuid.UUID) ([]lifecycle.Run, error) {
	return s.listRuns(ctx, botID)
}

func (s *stubCore) Transition(ctx context.Context, runID uuid.UUID, to lifecycle.RunState, opts lifecycle.TransitionOptions) (lifecycle.Run, error) {
	return s.transition(ctx, runID, to, opts)
}

func (s *stubCore) StopRun(ctx context.Context, runID uuid.UUID, message string) (lifecycle.Run, error) {
	return s.stopRun(ctx, runID, message)
}

func (s *stubCore) StopAll(ctx context.Context, botID *uuid.UUID) (lifecycle.StopAllResult, error) {
	return s.stopAll(ctx, botID)
}

func (s *stubCore) Heartbeat(ctx context.Context, runID uuid.UUID, workerID string, leaseDuration time.Duration) (lifecycle.Run, error) {
	return s.heartbeat(ctx, runID, workerID, leaseDuration)
}

func (s *stubCore) ListEvents(ctx context.Context, runID uuid.UUID, after *time.Time, limit int) ([]lifecycle.Event, error) {
	return s.listEvents(ctx, runID, after, limit)
}

func (s *stubCore) CreateIntent(ctx context.Context, runID uuid.UUID, params lifecycle.CreateIntentParams) (lifecycle.Intent, bool, error) {
	return s.createIntent(ctx, runID, params)
}

func (s *stubCore) AdvanceIntent(ctx context.Context, runID uuid.UUID, intentID string, newState lifecycle.IntentState, orderID *string, meta map[string]any) (lifecycle.Intent, error) {
	return s.advanceIntent(ctx, runID, intentID, newState, orderID, meta)
}

func (s *stubCore) ListIntents(ctx context.Context, runID uuid.UUID, state *lifecycle.IntentState) ([]lifecycle.Intent, error) {
	return s.listIntents(ctx, runID, state)
}

func (s *stubCore) Reconcile(ctx context.Context, params lifecycle.ReconcileParams) (lifecycle.ReconcileResult, error) {
	return s.reconcile(ctx, params)
}

func newTestServer(t *testing.T, core Core) *httptest.Server {
	t.Helper()
	app, err := New(core, nil, nil, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	routes, err := app.Routes()
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}
	srv := httptest.NewServer(routes)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestCreateIntentStatusReflectsIdempotency(t *testing.T) {
	runID := uuid.New()
	intent := lifecycle.Intent{
		ID:       uuid.New(),
		BotRunID: runID,
		IntentID: "open-1",
		Type:     "LIMIT",
		Side:     "BUY",
		Qty:      1,
		State:    lifecycle.IntentPending,
	}

	tests := []struct {
		name       string
		created    bool
		wantStatus int
	}{
		{name: "first creation", created: true, wantStatus: http.StatusCreated},
		{name: "idempotent replay", created: false, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := &stubCore{
				createIntent: func(_ context.Context, gotRunID uuid.UUID, params lifecycle.CreateIntentParams) (lifecycle.Intent, bool, error) {
					if gotRunID != runID {
						t.Errorf("run id = %s, want %s", gotRunID, runID)
					}
					if params.IntentID != "open-1" {
						t.Errorf("intent id = %q, want open-1", params.IntentID)
					}
					return intent, tt.created, nil
				},
			}
			srv := newTestServer(t, core)

			resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/runs/"+runID.String()+"/intents", map[string]any{
				"intent_id": "open-1",
				"type":      "LIMIT",
				"side":      "BUY",
				"qty":       1,
			})
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if _, ok := body["intent"]; !ok {
				t.Fatalf("response missing intent: %v", body)
			}
		})
	}
}

func TestPatchRunStateErrors(t *testing.T) {
	runID := uuid.New()

	tests := []struct {
		name       string
		state      string
		coreErr    error
		wantStatus int
	}{
		{
			name:       "invalid transition maps to conflict",
			state:      "RUNNING",
			coreErr:    &lifecycle.InvalidTransitionError{From: lifecycle.StateStopped, To: lifecycle.StateRunning},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unknown run maps to not found",
			state:      "STOPPING",
			coreErr:    &lifecycle.RunNotFoundError{RunID: runID},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown state rejected before core",
			state:      "PAUSED",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := &stubCore{
				transition: func(context.Context, uuid.UUID, lifecycle.RunState, lifecycle.TransitionOptions) (lifecycle.Run, error) {
					if tt.coreErr == nil {
						t.Error("core called for a request that should fail validation")
						return lifecycle.Run{}, &lifecycle.ValidationError{Field: "state", Reason: "unexpected call"}
					}
					return lifecycle.Run{}, tt.coreErr
				},
			}
			srv := newTestServer(t, core)

			resp, body := doJSON(t, http.MethodPatch, srv.URL+"/v1/runs/"+runID.String()+"/state", map[string]any{
				"state": tt.state,
			})
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if _, ok := body["error"]; !ok {
				t.Fatalf("response missing error: %v", body)
			}
		})
	}
}

func TestHeartbeatTerminalRunConflicts(t *testing.T) {
	runID := uuid.New()
	core := &stubCore{
		heartbeat: func(_ context.Context, _ uuid.UUID, workerID string, leaseDuration time.Duration) (lifecycle.Run, error) {
			if workerID != "worker-a" {
				t.Errorf("worker id = %q, want worker-a", workerID)
			}
			if leaseDuration != defaultLeaseDuration {
				t.Errorf("lease duration = %v, want %v", leaseDuration, defaultLeaseDuration)
			}
			return lifecycle.Run{}, &lifecycle.ConflictError{Reason: "run is in terminal state: STOPPED"}
		},
	}
	srv := newTestServer(t, core)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/runs/"+runID.String()+"/heartbeat", map[string]any{
		"worker_id": "worker-a",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestHeartbeatResponseProjection(t *testing.T) {
	runID := uuid.New()
	owner := "worker-a"
	until := time.Now().Add(30 * time.Second).UTC()
	core := &stubCore{
		heartbeat: func(context.Context, uuid.UUID, string, time.Duration) (lifecycle.Run, error) {
			return lifecycle.Run{
				ID:         runID,
				State:      lifecycle.StateRunning,
				LeaseOwner: &owner,
				LeaseUntil: &until,
				UpdatedAt:  until,
			}, nil
		},
	}
	srv := newTestServer(t, core)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/runs/"+runID.String()+"/heartbeat", map[string]any{
		"worker_id": "worker-a",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body["state"] != string(lifecycle.StateRunning) {
		t.Errorf("state = %v, want RUNNING", body["state"])
	}
	if body["lease_owner"] != owner {
		t.Errorf("lease_owner = %v, want %q", body["lease_owner"], owner)
	}
	if _, ok := body["run"]; ok {
		t.Error("heartbeat response should be a projection, not the full run envelope")
	}
}

func TestReconcileEndpoint(t *testing.T) {
	staleID := uuid.New()
	botID := uuid.New()
	core := &stubCore{
		reconcile: func(_ context.Context, params lifecycle.ReconcileParams) (lifecycle.ReconcileResult, error) {
			if params.BotID == nil || *params.BotID != botID {
				t.Errorf("bot id = %v, want %s", params.BotID, botID)
			}
			return lifecycle.ReconcileResult{
				StaleFound:   1,
				MarkedFailed: []uuid.UUID{staleID},
				At:           time.Now().UTC(),
			}, nil
		},
	}
	srv := newTestServer(t, core)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/runs/reconcile?bot_id="+botID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body["stale_found"] != float64(1) {
		t.Errorf("stale_found = %v, want 1", body["stale_found"])
	}
	marked, ok := body["marked_failed"].([]any)
	if !ok || len(marked) != 1 || marked[0] != staleID.String() {
		t.Errorf("marked_failed = %v, want [%s]", body["marked_failed"], staleID)
	}
}

func TestStopRunRequiresOwningBot(t *testing.T) {
	botID := uuid.New()
	runID := uuid.New()
	core := &stubCore{
		getRun: func(context.Context, uuid.UUID) (lifecycle.Run, error) {
			return lifecycle.Run{ID: runID, BotID: uuid.New(), State: lifecycle.StateRunning}, nil
		},
		stopRun: func(context.Context, uuid.UUID, string) (lifecycle.Run, error) {
			t.Error("StopRun called for a run owned by a different bot")
			return lifecycle.Run{}, nil
		},
	}
	srv := newTestServer(t, core)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/bots/"+botID.String()+"/runs/"+runID.String()+"/stop", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestArchiveWithoutStorage(t *testing.T) {
	core := &stubCore{}
	srv := newTestServer(t, core)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/runs/"+uuid.NewString()+"/archive", nil)
	if resp.StatusCode != http.StatusFailedDependency {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFailedDependency)
	}
}

func TestListEventsQueryValidation(t *testing.T) {
	runID := uuid.New()
	core := &stubCore{
		listEvents: func(_ context.Context, _ uuid.UUID, after *time.Time, limit int) ([]lifecycle.Event, error) {
			if after == nil {
				t.Error("after = nil, want parsed timestamp")
			}
			if limit != 50 {
				t.Errorf("limit = %d, want 50", limit)
			}
			return []lifecycle.Event{}, nil
		},
	}
	srv := newTestServer(t, core)

	base := srv.URL + "/v1/runs/" + runID.String() + "/events"

	resp, _ := doJSON(t, http.MethodGet, base+"?after=2026-08-30T10:00:00Z&limit=50", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, _ = doJSON(t, http.MethodGet, base+"?after=yesterday", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad after: status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	resp, _ = doJSON(t, http.MethodGet, base+"?limit=-1", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative limit: status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestCreateBotValidationError(t *testing.T) {
	core := &stubCore{
		createBot: func(_ context.Context, name, symbol string) (lifecycle.Bot, error) {
			return lifecycle.Bot{}, &lifecycle.ValidationError{Field: "name", Reason: "must not be empty"}
		},
	}
	srv := newTestServer(t, core)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/bots", map[string]any{"name": "", "symbol": "BTCUSDT"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
