package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tradeforge/services/lifecycle"
)

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// respondCoreError maps the lifecycle error taxonomy onto HTTP statuses.
// Invalid and racy transitions surface as conflicts, never as crashes.
func respondCoreError(w http.ResponseWriter, err error) {
	var (
		botNotFound    *lifecycle.BotNotFoundError
		runNotFound    *lifecycle.RunNotFoundError
		intentNotFound *lifecycle.IntentNotFoundError
		invalidEdge    *lifecycle.InvalidTransitionError
		conflict       *lifecycle.ConflictError
		validation     *lifecycle.ValidationError
	)

	switch {
	case errors.As(err, &botNotFound), errors.As(err, &runNotFound), errors.As(err, &intentNotFound):
		respondError(w, http.StatusNotFound, err)
	case errors.As(err, &invalidEdge), errors.As(err, &conflict):
		respondError(w, http.StatusConflict, err)
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, err)
	default:
		respondError(w, http.StatusInternalServerError, err)
	}
}
