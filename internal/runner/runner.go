// Package runner orchestrates test execution: it resolves a stored test and
// its credentials, enforces spend-control rate limiting, drives the provider
// adapters strictly sequentially, and normalizes every outcome into a
// persisted run record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Luccama700/ai-labs/internal/metrics"
	"github.com/Luccama700/ai-labs/internal/pricing"
	"github.com/Luccama700/ai-labs/internal/providers"
	"github.com/Luccama700/ai-labs/internal/ratelimit"
	"github.com/Luccama700/ai-labs/internal/secret"
	"github.com/Luccama700/ai-labs/internal/store"
	"github.com/Luccama700/ai-labs/internal/validation"
)

// Batch size bounds per orchestration call.
const (
	MinBatchCount = 1
	MaxBatchCount = 10
)

// credentialNotFoundMsg is the per-attempt message when a selection's stored
// key is missing or disabled.
const credentialNotFoundMsg = "API key not found or inactive"

// ErrRateLimited aborts a whole call at admission time. Mid-batch exhaustion
// does not produce it; that path returns partial results instead.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrTestNotFound means the test id does not exist for the requesting user.
var ErrTestNotFound = errors.New("test not found")

// ModelSelection identifies one target to run against.
type ModelSelection struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	KeyID    string `json:"key_id"`
}

// RunOptions are the inputs to one orchestration call.
type RunOptions struct {
	TestID     string
	Selections []ModelSelection
	Variables  map[string]string
	BatchCount int
	DryRun     bool
	UserID     string
}

// RunResult is the transient per-attempt outcome, mirroring what was
// persisted. ID is empty when no record was persisted (missing credential).
type RunResult struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Output          string  `json:"output,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	LatencyMs       int64   `json:"latency_ms"`
	InputTokens     *int    `json:"input_tokens"`
	OutputTokens    *int    `json:"output_tokens"`
	EstimatedCost   float64 `json:"estimated_cost"`
	Passed          *bool   `json:"passed"`
	ValidationNotes string  `json:"validation_notes,omitempty"`
}

// Runner executes batches. It holds no mutable state of its own; all
// coordination state lives in the store.
type Runner struct {
	store    store.Store
	registry *providers.Registry
	codec    *secret.Codec
	limiter  *ratelimit.Limiter
	metrics  *metrics.Registry
	logger   *slog.Logger
}

// New creates a Runner. metrics may be nil.
func New(s store.Store, reg *providers.Registry, codec *secret.Codec, limiter *ratelimit.Limiter, m *metrics.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: s, registry: reg, codec: codec, limiter: limiter, metrics: m, logger: logger}
}

// RunTest executes one orchestration call: batchCount repetitions over the
// model selections in caller order, strictly sequentially. It returns the
// ordered per-attempt results; mid-batch rate exhaustion returns the results
// produced so far rather than discarding them.
func (r *Runner) RunTest(ctx context.Context, opts RunOptions) ([]RunResult, error) {
	if opts.BatchCount < MinBatchCount || opts.BatchCount > MaxBatchCount {
		return nil, fmt.Errorf("batch count must be between %d and %d, got %d", MinBatchCount, MaxBatchCount, opts.BatchCount)
	}
	if len(opts.Selections) == 0 {
		return nil, errors.New("at least one model selection is required")
	}

	// Admission check up front: a call that is already over the limit does
	// no work at all. Dry runs spend nothing and bypass the limiter.
	if !opts.DryRun {
		if d := r.limiter.Check(ctx, opts.UserID); !d.Allowed {
			if r.metrics != nil {
				r.metrics.RateDenied.Inc()
			}
			return nil, ErrRateLimited
		}
	}

	test, err := r.store.GetTest(ctx, opts.TestID, opts.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("resolve test: %w", err)
	}

	merged := MergeVariables(test.DefaultVariables, opts.Variables)
	prompt := Substitute(test.PromptTemplate, merged)

	return r.runBatch(ctx, batchParams{
		userID:     opts.UserID,
		testID:     test.ID,
		prompt:     prompt,
		variables:  merged,
		selections: opts.Selections,
		batchCount: opts.BatchCount,
		dryRun:     opts.DryRun,
		contains:   test.ExpectedContains,
		schema:     test.JSONSchema,
	})
}

// RunAdHocPrompt is the same pipeline degenerated to a single selection with
// no stored test and no validation rules.
func (r *Runner) RunAdHocPrompt(ctx context.Context, userID, prompt string, sel ModelSelection, dryRun bool) (RunResult, error) {
	if !dryRun {
		if d := r.limiter.Check(ctx, userID); !d.Allowed {
			if r.metrics != nil {
				r.metrics.RateDenied.Inc()
			}
			return RunResult{}, ErrRateLimited
		}
	}

	results, err := r.runBatch(ctx, batchParams{
		userID:     userID,
		prompt:     prompt,
		selections: []ModelSelection{sel},
		batchCount: 1,
		dryRun:     dryRun,
		admitted:   true,
	})
	if err != nil {
		return RunResult{}, err
	}
	return results[0], nil
}

// RerunFromRecord re-invokes RunTest for a prior run's test with its stored
// variable snapshot and the same single model selection.
func (r *Runner) RerunFromRecord(ctx context.Context, runID, userID string) ([]RunResult, error) {
	prior, err := r.store.GetRun(ctx, runID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("run %s: %w", runID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("resolve run: %w", err)
	}
	if prior.TestID == "" {
		return nil, errors.New("ad-hoc runs cannot be rerun by id")
	}

	creds, err := r.store.GetActiveCredentials(ctx, []string{prior.CredentialID}, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}
	if _, ok := creds[prior.CredentialID]; !ok {
		return nil, errors.New(credentialNotFoundMsg)
	}

	return r.RunTest(ctx, RunOptions{
		TestID:     prior.TestID,
		Selections: []ModelSelection{{Provider: prior.Provider, Model: prior.Model, KeyID: prior.CredentialID}},
		Variables:  prior.Variables,
		BatchCount: 1,
		DryRun:     false,
		UserID:     userID,
	})
}

type batchParams struct {
	userID     string
	testID     string
	prompt     string
	variables  map[string]string
	selections []ModelSelection
	batchCount int
	dryRun     bool
	contains   string
	schema     string

	// admitted marks that this attempt already passed an admission check
	// that should double as its per-attempt check (single-attempt ad-hoc
	// calls).
	admitted bool
}

func (r *Runner) runBatch(ctx context.Context, p batchParams) ([]RunResult, error) {
	batchID := uuid.NewString()

	// One bulk credential lookup, scoped to the user and filtered to active
	// keys. Selections referencing anything else fail individually below.
	keyIDs := make([]string, 0, len(p.selections))
	seen := make(map[string]bool, len(p.selections))
	for _, sel := range p.selections {
		if !seen[sel.KeyID] {
			seen[sel.KeyID] = true
			keyIDs = append(keyIDs, sel.KeyID)
		}
	}
	creds, err := r.store.GetActiveCredentials(ctx, keyIDs, p.userID)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}

	results := make([]RunResult, 0, p.batchCount*len(p.selections))
	batchIndex := 0
	firstAttempt := true

	for rep := 0; rep < p.batchCount; rep++ {
		for _, sel := range p.selections {
			// Re-check immediately before each paid call. Exhaustion here is
			// a partial-success outcome: return what we have.
			if !p.dryRun && !(p.admitted && firstAttempt) {
				if d := r.limiter.Check(ctx, p.userID); !d.Allowed {
					if r.metrics != nil {
						r.metrics.RateDenied.Inc()
					}
					r.logger.Warn("batch aborted mid-way by rate limit",
						slog.String("batch_id", batchID),
						slog.Int("completed", len(results)))
					return results, nil
				}
			}
			firstAttempt = false

			cred, ok := creds[sel.KeyID]
			if !ok {
				// Isolated per-attempt failure, no record persisted.
				results = append(results, RunResult{
					Status:       store.StatusFailed,
					Provider:     sel.Provider,
					Model:        sel.Model,
					ErrorMessage: credentialNotFoundMsg,
				})
				batchIndex++
				continue
			}

			results = append(results, r.executeAttempt(ctx, p, sel, cred, batchID, batchIndex))
			batchIndex++
		}
	}
	return results, nil
}

// executeAttempt runs one (repetition, selection) pair through its record
// lifecycle: pending, then running/completed/failed for live calls, or
// straight to dry_run for estimates.
func (r *Runner) executeAttempt(ctx context.Context, p batchParams, sel ModelSelection, cred store.Credential, batchID string, batchIndex int) RunResult {
	rec := store.RunRecord{
		ID:           uuid.NewString(),
		UserID:       p.userID,
		TestID:       p.testID,
		Status:       store.StatusPending,
		Provider:     sel.Provider,
		Model:        sel.Model,
		Prompt:       p.prompt,
		Variables:    p.variables,
		CredentialID: cred.ID,
		BatchID:      batchID,
		BatchIndex:   batchIndex,
		IsDryRun:     p.dryRun,
	}
	if err := r.store.InsertRun(ctx, rec); err != nil {
		r.logger.Error("insert run failed", slog.String("error", err.Error()))
		return RunResult{
			Status:       store.StatusFailed,
			Provider:     sel.Provider,
			Model:        sel.Model,
			ErrorMessage: "failed to create run record",
		}
	}

	if p.dryRun {
		r.estimateDryRun(&rec)
	} else {
		r.executeLive(ctx, p, sel, cred, &rec)
	}

	if err := r.store.UpdateRun(ctx, rec); err != nil {
		r.logger.Error("update run failed",
			slog.String("run_id", rec.ID),
			slog.String("error", err.Error()))
	}
	if r.metrics != nil {
		r.metrics.RunsTotal.WithLabelValues(rec.Provider, rec.Model, rec.Status).Inc()
		if rec.Status == store.StatusCompleted {
			r.metrics.RunLatency.WithLabelValues(rec.Provider, rec.Model).Observe(float64(rec.LatencyMs))
		}
		r.metrics.CostUSD.WithLabelValues(rec.Provider, rec.Model).Add(rec.EstimatedCost)
	}

	return RunResult{
		ID:              rec.ID,
		Status:          rec.Status,
		Provider:        rec.Provider,
		Model:           rec.Model,
		Output:          rec.Output,
		ErrorMessage:    rec.ErrorMessage,
		LatencyMs:       rec.LatencyMs,
		InputTokens:     rec.InputTokens,
		OutputTokens:    rec.OutputTokens,
		EstimatedCost:   rec.EstimatedCost,
		Passed:          rec.Passed,
		ValidationNotes: rec.ValidationNotes,
	}
}

// estimateDryRun computes tokens and cost without any network access. Output
// size uses a fixed stand-in since no output exists yet; OutputTokens stays
// nil on the record because nothing was generated.
func (r *Runner) estimateDryRun(rec *store.RunRecord) {
	inputTokens := pricing.EstimateTokens(rec.Prompt)
	cost := pricing.CalculateCost(rec.Provider, rec.Model, inputTokens, pricing.DryRunOutputTokens)

	rec.Status = store.StatusDryRun
	rec.InputTokens = &inputTokens
	rec.TokensEstimated = true
	rec.EstimatedCost = cost.USD
	rec.CostEstimated = true
}

// executeLive performs the provider call for one attempt. The credential is
// decrypted immediately before the call and not retained on any exit path.
func (r *Runner) executeLive(ctx context.Context, p batchParams, sel ModelSelection, cred store.Credential, rec *store.RunRecord) {
	adapter, ok := r.registry.Get(sel.Provider)
	if !ok {
		rec.Status = store.StatusFailed
		rec.ErrorMessage = fmt.Sprintf("unknown provider: %s", sel.Provider)
		return
	}

	key, err := r.codec.Decrypt(secret.Payload{Ciphertext: cred.Ciphertext, IV: cred.IV, AuthTag: cred.AuthTag})
	if err != nil {
		rec.Status = store.StatusFailed
		rec.ErrorMessage = "failed to decrypt stored credential"
		return
	}

	rec.Status = store.StatusRunning

	start := time.Now()
	resp, err := adapter.Complete(ctx, providers.CompletionRequest{
		Model:    sel.Model,
		Messages: []providers.Message{{Role: "user", Content: p.prompt}},
		Key:      key,
		BaseURL:  cred.BaseURL,
	})
	rec.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		// Adapter errors arrive already redacted; redact again in case a
		// transport error embedded the key some other way.
		rec.Status = store.StatusFailed
		rec.ErrorMessage = secret.Redact(err.Error(), key)
		return
	}

	rec.Status = store.StatusCompleted
	rec.Output = resp.Output

	if resp.TokensEstimated || resp.InputTokens == nil || resp.OutputTokens == nil {
		in := pricing.EstimateTokens(p.prompt)
		out := pricing.EstimateTokens(resp.Output)
		total := in + out
		rec.InputTokens = &in
		rec.OutputTokens = &out
		rec.TotalTokens = &total
		rec.TokensEstimated = true
	} else {
		rec.InputTokens = resp.InputTokens
		rec.OutputTokens = resp.OutputTokens
		rec.TotalTokens = resp.TotalTokens
		if rec.TotalTokens == nil {
			total := *resp.InputTokens + *resp.OutputTokens
			rec.TotalTokens = &total
		}
	}

	cost := pricing.CalculateCost(sel.Provider, sel.Model, *rec.InputTokens, *rec.OutputTokens)
	rec.EstimatedCost = cost.USD
	rec.CostEstimated = cost.Estimated || rec.TokensEstimated

	if p.contains != "" || p.schema != "" {
		v := validation.Validate(resp.Output, p.contains, p.schema)
		rec.Passed = v.Passed
		rec.ValidationNotes = v.Notes
	}
}
