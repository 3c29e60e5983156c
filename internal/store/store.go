// Package store defines the persistence interface for tests, credentials,
// runs, and rate windows, plus the SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row (or a row owned by a
// different user).
var ErrNotFound = errors.New("not found")

// Run statuses. Terminal states (completed, failed, dry_run) are never
// mutated again once written.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDryRun    = "dry_run"
)

// TestDefinition is a stored prompt template with its validation rules.
// Empty ExpectedContains / JSONSchema mean the rule is not configured.
type TestDefinition struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	Name             string            `json:"name"`
	PromptTemplate   string            `json:"prompt_template"`
	DefaultVariables map[string]string `json:"default_variables,omitempty"`
	ExpectedContains string            `json:"expected_contains,omitempty"`
	JSONSchema       string            `json:"json_schema,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Credential is an encrypted stored API key. The plaintext never touches this
// struct; Ciphertext/IV/AuthTag are the secret codec's at-rest form.
type Credential struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Provider   string    `json:"provider"`
	Label      string    `json:"label"`
	Ciphertext string    `json:"-"`
	IV         string    `json:"-"`
	AuthTag    string    `json:"-"`
	LastFour   string    `json:"last_four"`
	BaseURL    string    `json:"base_url,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunRecord is one executed (or estimated) attempt of a prompt against one
// model. Nullable token counts stay nil when neither the provider nor the
// heuristic produced them.
type RunRecord struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	TestID          string            `json:"test_id,omitempty"` // empty for ad-hoc runs
	Status          string            `json:"status"`
	Provider        string            `json:"provider"`
	Model           string            `json:"model"`
	Prompt          string            `json:"prompt"`
	Output          string            `json:"output,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	LatencyMs       int64             `json:"latency_ms"`
	InputTokens     *int              `json:"input_tokens"`
	OutputTokens    *int              `json:"output_tokens"`
	TotalTokens     *int              `json:"total_tokens"`
	TokensEstimated bool              `json:"tokens_estimated"`
	EstimatedCost   float64           `json:"estimated_cost"`
	CostEstimated   bool              `json:"cost_estimated"`
	Passed          *bool             `json:"passed"`
	ValidationNotes string            `json:"validation_notes,omitempty"`
	Variables       map[string]string `json:"variables,omitempty"` // snapshot for rerun
	CredentialID    string            `json:"credential_id,omitempty"`
	BatchID         string            `json:"batch_id"`
	BatchIndex      int               `json:"batch_index"`
	IsDryRun        bool              `json:"is_dry_run"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Store is the persistence boundary. All lookups are scoped to the owning
// user; IncrementRateWindow must be atomic across concurrent callers.
type Store interface {
	// Tests
	UpsertTest(ctx context.Context, t TestDefinition) error
	GetTest(ctx context.Context, id, userID string) (*TestDefinition, error)

	// Credentials
	InsertCredential(ctx context.Context, c Credential) error
	ListCredentials(ctx context.Context, userID string) ([]Credential, error)
	// GetActiveCredentials bulk-resolves ids to credentials owned by userID
	// with is_active set. Missing or inactive ids are simply absent from the
	// result map.
	GetActiveCredentials(ctx context.Context, ids []string, userID string) (map[string]Credential, error)
	DeactivateCredential(ctx context.Context, id, userID string) error

	// Runs
	InsertRun(ctx context.Context, r RunRecord) error
	UpdateRun(ctx context.Context, r RunRecord) error
	GetRun(ctx context.Context, id, userID string) (*RunRecord, error)
	ListRuns(ctx context.Context, userID, testID string, limit int) ([]RunRecord, error)

	// Rate windows. IncrementRateWindow creates the (userID, bucket) counter
	// at 1 or atomically increments it, returning the post-increment count.
	IncrementRateWindow(ctx context.Context, userID, bucket string) (int, error)
	DeleteRateWindowsBefore(ctx context.Context, bucketCutoff string) (int64, error)

	// Schema lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
