// Package httpapi exposes the REST surface over the orchestration core.
// Session mechanics live upstream; handlers trust the authenticated user id
// supplied in the X-User-ID header.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Luccama700/ai-labs/internal/metrics"
	"github.com/Luccama700/ai-labs/internal/providers"
	"github.com/Luccama700/ai-labs/internal/runner"
	"github.com/Luccama700/ai-labs/internal/secret"
	"github.com/Luccama700/ai-labs/internal/store"
)

const userIDHeader = "X-User-ID"

type Dependencies struct {
	Runner   *runner.Runner
	Registry *providers.Registry
	Store    store.Store
	Codec    *secret.Codec
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

func MountRoutes(r chi.Router, d Dependencies) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"providers": d.Registry.Names(),
		})
	})

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Post("/tests", d.handleUpsertTest)
		api.Post("/tests/{id}/run", d.handleRunTest)
		api.Post("/prompts/run", d.handleRunAdHoc)
		api.Post("/runs/{id}/rerun", d.handleRerun)
		api.Get("/runs", d.handleListRuns)
		api.Get("/runs/export", d.handleExport)

		api.Post("/keys", d.handleCreateKey)
		api.Get("/keys", d.handleListKeys)
		api.Delete("/keys/{id}", d.handleDeleteKey)

		api.Post("/providers/{name}/test-connection", d.handleTestConnection)
		api.Get("/providers/{name}/models", d.handleListModels)
	})
}

// userID extracts the authenticated user. Empty means the upstream auth layer
// was bypassed; reject.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := r.Header.Get(userIDHeader)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return "", false
	}
	return uid, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
