package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/bots", a.handleCreateBot)
		r.Get("/bots", a.handleListBots)
		r.Get("/bots/{botID}", a.handleGetBot)
		r.Post("/bots/{botID}/runs", a.handleCreateRun)
		r.Get("/bots/{botID}/runs", a.handleListRuns)
		r.Post("/bots/{botID}/runs/{runID}/stop", a.handleStopRun)

		r.Post("/runs/stop-all", a.handleStopAll)
		r.Post("/runs/reconcile", a.handleReconcile)
		r.Get("/runs/{runID}", a.handleGetRun)
		r.Patch("/runs/{runID}/state", a.handlePatchRunState)
		r.Post("/runs/{runID}/heartbeat", a.handleHeartbeat)
		r.Get("/runs/{runID}/events", a.handleListEvents)
		r.Post("/runs/{runID}/archive", a.handleArchiveRun)

		r.Post("/runs/{runID}/intents", a.handleCreateIntent)
		r.Get("/runs/{runID}/intents", a.handleListIntents)
		r.Patch("/runs/{runID}/intents/{intentID}/state", a.handleAdvanceIntent)
	})

	return r, nil
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
