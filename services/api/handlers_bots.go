package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (a *API) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

	bot, err := a.core.CreateBot(r.Context(), req.Name, req.Symbol)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"bot": bot})
}

func (a *API) handleGetBot(w http.ResponseWriter, r *http.Request) {
	botID, err := uuid.Parse(chi.URLParam(r, "botID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid bot id is required"))
		return
	}

	bot, err := a.core.GetBot(r.Context(), botID)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"bot": bot})
}

func (a *API) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := a.core.ListBots(r.Context())
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"bots": bots})
}
