package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gradloop/taskwell/internal/task"
)

// newOpsRouter serves the operational surface of the worker daemon.
// This is plumbing for health checks and queue inspection, not an
// application API.
func (a *app) newOpsRouter(queueStore task.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/queues", func(w http.ResponseWriter, req *http.Request) {
		stats, err := queueStore.Stats(req.Context())
		if err != nil {
			a.logger.Error("failed to read queue stats", "error", err)
			http.Error(w, "failed to read queue stats", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			a.logger.Error("failed to encode queue stats", "error", err)
		}
	})

	return r
}
