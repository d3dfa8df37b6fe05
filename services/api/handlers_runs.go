package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tradeforge/pkg/bus"
	"tradeforge/services/lifecycle"
)

func (a *API) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	botID, err := uuid.Parse(chi.URLParam(r, "botID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid bot id is required"))
		return
	}

	run, err := a.core.CreateRun(r.Context(), botID)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	if a.config.Notifier != nil {
		if err := a.config.Notifier.Publish(r.Context(), bus.SubjectRunQueued, map[string]any{
			"run_id": run.ID,
			"bot_id": run.BotID,
			"state":  run.State,
		}); err != nil {
			log.Error().Err(err).Stringer("run_id", run.ID).Msg("publish run queued")
		}
	}

	respondJSON(w, http.StatusCreated, map[string]any{"run": run})
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	botID, err := uuid.Parse(chi.URLParam(r, "botID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid bot id is required"))
		return
	}

	runs, err := a.core.ListRuns(r.Context(), botID)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid run id is required"))
		return
	}

	run, err := a.core.GetRun(r.Context(), runID)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (a *API) handleStopRun(w http.ResponseWriter, r *http.Request) {
	botID, err := uuid.Parse(chi.URLParam(r, "botID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid bot id is required"))
		return
	}
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid run id is required"))
		return
	}

	run, err := a.core.GetRun(r.Context(), runID)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	if run.BotID != botID {
		respondError(w, http.StatusNotFound, errors.New("run not found for this bot"))
		return
	}

	stopped, err := a.core.StopRun(r.Context(), runID, "Stop requested")
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"run": stopped})
}

func (a *API) handleStopAll(w http.ResponseWriter, r *http.Request) {
	var botID *uuid.UUID
	if raw := r.URL.Query().Get("bot_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("valid bot_id is required"))
			return
		}
		botID = &id
	}

	result, err := a.core.StopAll(r.Context(), botID)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *API) handlePatchRunState(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid run id is required"))
		return
	}

	var req struct {
		State     string `json:"state"`
		Message   string `json:"message"`
		ErrorCode string `json:"error_code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	to, err := lifecycle.ParseRunState(req.State)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	run, err := a.core.Transition(r.Context(), runID, to, lifecycle.TransitionOptions{
		Message:   req.Message,
		ErrorCode: req.ErrorCode,
	})
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid run id is required"))
		return
	}

	var req struct {
		WorkerID string `json:"worker_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	run, err := a.core.Heartbeat(r.Context(), runID, req.WorkerID, a.config.LeaseDuration)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":          run.ID,
		"state":       run.State,
		"lease_owner": run.LeaseOwner,
		"lease_until": run.LeaseUntil,
		"updated_at":  run.UpdatedAt,
	})
}

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid run id is required"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
	}

	var after *time.Time
	if raw := r.URL.Query().Get("after"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("after must be an RFC3339 timestamp"))
			return
		}
		after = &ts
	}

	events, err := a.core.ListEvents(r.Context(), runID, after, limit)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var botID *uuid.UUID
	if raw := r.URL.Query().Get("bot_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("valid bot_id is required"))
			return
		}
		botID = &id
	}

	result, err := a.core.Reconcile(r.Context(), lifecycle.ReconcileParams{BotID: botID})
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *API) handleArchiveRun(w http.ResponseWriter, r *http.Request) {
	if a.archiver == nil {
		respondError(w, http.StatusFailedDependency, errors.New("archive storage not configured"))
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid run id is required"))
		return
	}

	export, err := a.archiver.ExportRun(r.Context(), runID)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"archive": export})
}
