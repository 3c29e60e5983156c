// Package export renders run records as a full-fidelity JSON array or a
// flattened CSV for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Luccama700/ai-labs/internal/store"
)

// WriteJSON writes runs as an indented JSON array with every record field.
func WriteJSON(w io.Writer, runs []store.RunRecord) error {
	if runs == nil {
		runs = []store.RunRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(runs)
}

var csvHeader = []string{
	"id", "test_id", "status", "provider", "model", "prompt", "output",
	"error_message", "latency_ms", "input_tokens", "output_tokens",
	"total_tokens", "tokens_estimated", "estimated_cost", "cost_estimated",
	"passed", "validation_notes", "batch_id", "batch_index", "is_dry_run",
	"created_at",
}

// WriteCSV writes runs as CSV. Free-text fields are quote-escaped by the
// encoder; nullable numeric and tri-state fields render as empty cells.
func WriteCSV(w io.Writer, runs []store.RunRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range runs {
		row := []string{
			r.ID,
			r.TestID,
			r.Status,
			r.Provider,
			r.Model,
			r.Prompt,
			r.Output,
			r.ErrorMessage,
			strconv.FormatInt(r.LatencyMs, 10),
			intCell(r.InputTokens),
			intCell(r.OutputTokens),
			intCell(r.TotalTokens),
			strconv.FormatBool(r.TokensEstimated),
			strconv.FormatFloat(r.EstimatedCost, 'f', -1, 64),
			strconv.FormatBool(r.CostEstimated),
			boolCell(r.Passed),
			r.ValidationNotes,
			r.BatchID,
			strconv.Itoa(r.BatchIndex),
			strconv.FormatBool(r.IsDryRun),
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func boolCell(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
