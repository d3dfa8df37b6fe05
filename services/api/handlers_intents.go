package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tradeforge/services/lifecycle"
)

func (a *API) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid run id is required"))
		return
	}

	var req struct {
		IntentID string         `json:"intent_id"`
		Type     string         `json:"type"`
		Side     string         `json:"side"`
		Qty      float64        `json:"qty"`
		Price    *float64       `json:"price"`
		Meta     map[string]any `json:"meta"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	intent, created, err := a.core.CreateIntent(r.Context(), runID, lifecycle.CreateIntentParams{
		IntentID: req.IntentID,
		Type:     req.Type,
		Side:     req.Side,
		Qty:      req.Qty,
		Price:    req.Price,
		Meta:     req.Meta,
	})
	if err != nil {
		respondCoreError(w, err)
		return
	}

	// Idempotent replays return the original record with 200.
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]any{"intent": intent})
}

func (a *API) handleListIntents(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid run id is required"))
		return
	}

	var state *lifecycle.IntentState
	if raw := r.URL.Query().Get("state"); raw != "" {
		parsed, err := lifecycle.ParseIntentState(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		state = &parsed
	}

	intents, err := a.core.ListIntents(r.Context(), runID, state)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"intents": intents})
}

func (a *API) handleAdvanceIntent(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid run id is required"))
		return
	}
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		respondError(w, http.StatusBadRequest, errors.New("intent id is required"))
		return
	}

	var req struct {
		State   string         `json:"state"`
		OrderID *string        `json:"order_id"`
		Meta    map[string]any `json:"meta"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	newState, err := lifecycle.ParseIntentState(req.State)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	intent, err := a.core.AdvanceIntent(r.Context(), runID, intentID, newState, req.OrderID, req.Meta)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"intent": intent})
}
