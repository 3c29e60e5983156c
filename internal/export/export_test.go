package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Luccama700/ai-labs/internal/store"
)

func sampleRuns() []store.RunRecord {
	in, out, total := 12, 34, 46
	passed := true
	return []store.RunRecord{
		{
			ID:              "r1",
			TestID:          "t1",
			Status:          store.StatusCompleted,
			Provider:        "openai",
			Model:           "gpt-4o",
			Prompt:          `say "hello", please`,
			Output:          "hello,\nworld",
			LatencyMs:       321,
			InputTokens:     &in,
			OutputTokens:    &out,
			TotalTokens:     &total,
			EstimatedCost:   0.00123,
			Passed:          &passed,
			ValidationNotes: `output contains "hello"`,
			BatchID:         "b1",
			CreatedAt:       time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:           "r2",
			TestID:       "t1",
			Status:       store.StatusFailed,
			Provider:     "anthropic",
			Model:        "claude-3-haiku-20240307",
			ErrorMessage: "API error (status 500): upstream busy",
			BatchID:      "b1",
			BatchIndex:   1,
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleRuns()); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d records, want 2", len(decoded))
	}
	if decoded[0]["id"] != "r1" || decoded[0]["status"] != "completed" {
		t.Errorf("unexpected first record: %v", decoded[0])
	}
	// Nullable fields survive as JSON null.
	if v, ok := decoded[1]["passed"]; !ok || v != nil {
		t.Errorf("passed = %v, want null for unvalidated run", v)
	}
}

func TestWriteJSON_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("empty export = %q, want []", got)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRuns()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not parseable CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}

	header := rows[0]
	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("missing column %q", name)
		return -1
	}

	// Free text with quotes and newlines round-trips through the encoder.
	if got := rows[1][col("output")]; got != "hello,\nworld" {
		t.Errorf("output cell = %q", got)
	}
	if got := rows[1][col("validation_notes")]; got != `output contains "hello"` {
		t.Errorf("validation_notes cell = %q", got)
	}
	// Nullable cells are empty for the failed run.
	if got := rows[2][col("input_tokens")]; got != "" {
		t.Errorf("input_tokens cell = %q, want empty", got)
	}
	if got := rows[2][col("passed")]; got != "" {
		t.Errorf("passed cell = %q, want empty", got)
	}
	if got := rows[1][col("passed")]; got != "true" {
		t.Errorf("passed cell = %q, want true", got)
	}
}
