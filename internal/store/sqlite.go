package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure-Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database at the given DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Enable WAL mode and set busy timeout.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	// SQLite only supports one writer at a time. Limit connections to avoid
	// contention and keep a small idle pool for read concurrency.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tests (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			prompt_template TEXT NOT NULL,
			default_variables TEXT NOT NULL DEFAULT '{}',
			expected_contains TEXT NOT NULL DEFAULT '',
			json_schema TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tests_user ON tests(user_id)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			ciphertext TEXT NOT NULL,
			iv TEXT NOT NULL,
			auth_tag TEXT NOT NULL,
			last_four TEXT NOT NULL DEFAULT '',
			base_url TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_user ON credentials(user_id)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			test_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt TEXT NOT NULL DEFAULT '',
			output TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			latency_ms INTEGER NOT NULL DEFAULT 0,
			input_tokens INTEGER,
			output_tokens INTEGER,
			total_tokens INTEGER,
			tokens_estimated BOOLEAN NOT NULL DEFAULT 0,
			estimated_cost REAL NOT NULL DEFAULT 0,
			cost_estimated BOOLEAN NOT NULL DEFAULT 0,
			passed BOOLEAN,
			validation_notes TEXT NOT NULL DEFAULT '',
			variables TEXT NOT NULL DEFAULT '{}',
			credential_id TEXT NOT NULL DEFAULT '',
			batch_id TEXT NOT NULL DEFAULT '',
			batch_index INTEGER NOT NULL DEFAULT 0,
			is_dry_run BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_test ON runs(test_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_batch ON runs(batch_id)`,
		`CREATE TABLE IF NOT EXISTS rate_windows (
			user_id TEXT NOT NULL,
			bucket TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, bucket)
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// --- tests ---

func (s *SQLiteStore) UpsertTest(ctx context.Context, t TestDefinition) error {
	vars, err := json.Marshal(t.DefaultVariables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tests (id, user_id, name, prompt_template, default_variables, expected_contains, json_schema)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			prompt_template = excluded.prompt_template,
			default_variables = excluded.default_variables,
			expected_contains = excluded.expected_contains,
			json_schema = excluded.json_schema`,
		t.ID, t.UserID, t.Name, t.PromptTemplate, string(vars), t.ExpectedContains, t.JSONSchema)
	if err != nil {
		return fmt.Errorf("upsert test: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTest(ctx context.Context, id, userID string) (*TestDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, prompt_template, default_variables, expected_contains, json_schema, created_at
		FROM tests WHERE id = ? AND user_id = ?`, id, userID)

	var t TestDefinition
	var vars string
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.PromptTemplate, &vars, &t.ExpectedContains, &t.JSONSchema, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	if err := json.Unmarshal([]byte(vars), &t.DefaultVariables); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	return &t, nil
}

// --- credentials ---

func (s *SQLiteStore) InsertCredential(ctx context.Context, c Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, user_id, provider, label, ciphertext, iv, auth_tag, last_four, base_url, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Provider, c.Label, c.Ciphertext, c.IV, c.AuthTag, c.LastFour, c.BaseURL, c.IsActive)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCredentials(ctx context.Context, userID string) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, label, last_four, base_url, is_active, created_at
		FROM credentials WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.Label, &c.LastFour, &c.BaseURL, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetActiveCredentials(ctx context.Context, ids []string, userID string) (map[string]Credential, error) {
	out := make(map[string]Credential, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, userID)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, user_id, provider, label, ciphertext, iv, auth_tag, last_four, base_url, is_active, created_at
		FROM credentials WHERE id IN (%s) AND user_id = ? AND is_active = 1`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.Label, &c.Ciphertext, &c.IV, &c.AuthTag, &c.LastFour, &c.BaseURL, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeactivateCredential(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET is_active = 0 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deactivate credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- runs ---

func (s *SQLiteStore) InsertRun(ctx context.Context, r RunRecord) error {
	vars, err := json.Marshal(r.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, user_id, test_id, status, provider, model, prompt, output, error_message,
			latency_ms, input_tokens, output_tokens, total_tokens, tokens_estimated,
			estimated_cost, cost_estimated, passed, validation_notes, variables, credential_id,
			batch_id, batch_index, is_dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.TestID, r.Status, r.Provider, r.Model, r.Prompt, r.Output, r.ErrorMessage,
		r.LatencyMs, nullInt(r.InputTokens), nullInt(r.OutputTokens), nullInt(r.TotalTokens), r.TokensEstimated,
		r.EstimatedCost, r.CostEstimated, nullBool(r.Passed), r.ValidationNotes, string(vars), r.CredentialID,
		r.BatchID, r.BatchIndex, r.IsDryRun)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, r RunRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, output = ?, error_message = ?, latency_ms = ?,
			input_tokens = ?, output_tokens = ?, total_tokens = ?, tokens_estimated = ?,
			estimated_cost = ?, cost_estimated = ?, passed = ?, validation_notes = ?
		WHERE id = ?`,
		r.Status, r.Output, r.ErrorMessage, r.LatencyMs,
		nullInt(r.InputTokens), nullInt(r.OutputTokens), nullInt(r.TotalTokens), r.TokensEstimated,
		r.EstimatedCost, r.CostEstimated, nullBool(r.Passed), r.ValidationNotes,
		r.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, user_id, test_id, status, provider, model, prompt, output, error_message,
	latency_ms, input_tokens, output_tokens, total_tokens, tokens_estimated,
	estimated_cost, cost_estimated, passed, validation_notes, variables, credential_id,
	batch_id, batch_index, is_dry_run, created_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id, userID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? AND user_id = ?`, id, userID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, userID, testID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE user_id = ?`
	args := []any{userID}
	if testID != "" {
		query += ` AND test_id = ?`
		args = append(args, testID)
	}
	query += ` ORDER BY created_at DESC, batch_index DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		r        RunRecord
		in, out  sql.NullInt64
		total    sql.NullInt64
		passed   sql.NullBool
		varsJSON string
	)
	err := row.Scan(&r.ID, &r.UserID, &r.TestID, &r.Status, &r.Provider, &r.Model, &r.Prompt, &r.Output, &r.ErrorMessage,
		&r.LatencyMs, &in, &out, &total, &r.TokensEstimated,
		&r.EstimatedCost, &r.CostEstimated, &passed, &r.ValidationNotes, &varsJSON, &r.CredentialID,
		&r.BatchID, &r.BatchIndex, &r.IsDryRun, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if in.Valid {
		v := int(in.Int64)
		r.InputTokens = &v
	}
	if out.Valid {
		v := int(out.Int64)
		r.OutputTokens = &v
	}
	if total.Valid {
		v := int(total.Int64)
		r.TotalTokens = &v
	}
	if passed.Valid {
		v := passed.Bool
		r.Passed = &v
	}
	if err := json.Unmarshal([]byte(varsJSON), &r.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	return &r, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

// --- rate windows ---

// IncrementRateWindow creates or bumps the (user, bucket) counter in one
// statement so concurrent callers never under-count.
func (s *SQLiteStore) IncrementRateWindow(ctx context.Context, userID, bucket string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_windows (user_id, bucket, count) VALUES (?, ?, 1)
		ON CONFLICT(user_id, bucket) DO UPDATE SET count = count + 1
		RETURNING count`, userID, bucket)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("increment rate window: %w", err)
	}
	return count, nil
}

// DeleteRateWindowsBefore removes counters for minute buckets that sort
// before the cutoff. Bucket keys are UTC "2006-01-02T15:04" strings, so
// lexicographic order is chronological order.
func (s *SQLiteStore) DeleteRateWindowsBefore(ctx context.Context, bucketCutoff string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_windows WHERE bucket < ?`, bucketCutoff)
	if err != nil {
		return 0, fmt.Errorf("delete rate windows: %w", err)
	}
	return res.RowsAffected()
}
