package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Luccama700/ai-labs/internal/export"
	"github.com/Luccama700/ai-labs/internal/runner"
	"github.com/Luccama700/ai-labs/internal/store"
)

type upsertTestRequest struct {
	ID               string            `json:"id,omitempty"`
	Name             string            `json:"name"`
	PromptTemplate   string            `json:"prompt_template"`
	DefaultVariables map[string]string `json:"default_variables,omitempty"`
	ExpectedContains string            `json:"expected_contains,omitempty"`
	JSONSchema       string            `json:"json_schema,omitempty"`
}

func (d Dependencies) handleUpsertTest(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req upsertTestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.PromptTemplate == "" {
		writeError(w, http.StatusBadRequest, "name and prompt_template are required")
		return
	}
	t := store.TestDefinition{
		ID:               req.ID,
		UserID:           uid,
		Name:             req.Name,
		PromptTemplate:   req.PromptTemplate,
		DefaultVariables: req.DefaultVariables,
		ExpectedContains: req.ExpectedContains,
		JSONSchema:       req.JSONSchema,
		CreatedAt:        time.Now().UTC(),
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := d.Store.UpsertTest(r.Context(), t); err != nil {
		d.Logger.Error("upsert test failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save test")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type runTestRequest struct {
	Selections []runner.ModelSelection `json:"selections"`
	Variables  map[string]string       `json:"variables,omitempty"`
	BatchCount int                     `json:"batch_count,omitempty"`
	DryRun     bool                    `json:"dry_run,omitempty"`
}

func (d Dependencies) handleRunTest(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req runTestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BatchCount == 0 {
		req.BatchCount = 1
	}
	results, err := d.Runner.RunTest(r.Context(), runner.RunOptions{
		TestID:     chi.URLParam(r, "id"),
		Selections: req.Selections,
		Variables:  req.Variables,
		BatchCount: req.BatchCount,
		DryRun:     req.DryRun,
		UserID:     uid,
	})
	writeRunOutcome(w, results, err)
}

type adHocRequest struct {
	Prompt    string                `json:"prompt"`
	Selection runner.ModelSelection `json:"selection"`
	DryRun    bool                  `json:"dry_run,omitempty"`
}

func (d Dependencies) handleRunAdHoc(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req adHocRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	result, err := d.Runner.RunAdHocPrompt(r.Context(), uid, req.Prompt, req.Selection, req.DryRun)
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (d Dependencies) handleRerun(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	results, err := d.Runner.RerunFromRecord(r.Context(), chi.URLParam(r, "id"), uid)
	writeRunOutcome(w, results, err)
}

func (d Dependencies) handleListRuns(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	runs, err := d.Store.ListRuns(r.Context(), uid, r.URL.Query().Get("test_id"), 200)
	if err != nil {
		d.Logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (d Dependencies) handleExport(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	runs, err := d.Store.ListRuns(r.Context(), uid, r.URL.Query().Get("test_id"), 0)
	if err != nil {
		d.Logger.Error("export query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load runs")
		return
	}
	switch format := r.URL.Query().Get("format"); format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="runs.csv"`)
		if err := export.WriteCSV(w, runs); err != nil {
			d.Logger.Error("csv export failed", "error", err)
		}
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="runs.json"`)
		if err := export.WriteJSON(w, runs); err != nil {
			d.Logger.Error("json export failed", "error", err)
		}
	default:
		writeError(w, http.StatusBadRequest, "format must be json or csv")
	}
}

// writeRunOutcome maps runner results and errors onto HTTP. Partial results
// with a nil error are a success (mid-batch rate exhaustion keeps what ran).
func writeRunOutcome(w http.ResponseWriter, results []runner.RunResult, err error) {
	if err != nil {
		writeRunError(w, err)
		return
	}
	if results == nil {
		results = []runner.RunResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, runner.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, runner.ErrTestNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
