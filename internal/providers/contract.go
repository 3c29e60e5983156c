// Package providers defines the uniform adapter boundary over heterogeneous
// vendor completion APIs. The orchestrator treats every vendor identically;
// adapter selection is the single point of provider-specific branching.
package providers

import (
	"context"
	"fmt"

	"github.com/Luccama700/ai-labs/internal/secret"
)

// StatusError captures an HTTP status code from a provider response.
// Adapters return it so callers can distinguish vendor rejections from
// transport failures.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Message is one turn of a chat-style prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the vendor-neutral form of one completion call.
// Key is the decrypted credential; it lives only for the duration of the
// adapter call and must never be logged or persisted.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int      // 0 means adapter default
	Temperature *float64 // nil means vendor default
	Key         string
	BaseURL     string // override; empty means the vendor's public endpoint
}

// CompletionResponse is the normalized result of one completion call.
// Token counts are nil when the vendor omitted usage metadata; in that case
// TokensEstimated is true and the caller back-fills counts from the length
// heuristic.
type CompletionResponse struct {
	Output          string
	InputTokens     *int
	OutputTokens    *int
	TotalTokens     *int
	TokensEstimated bool
	FinishReason    string
}

// ConnectionResult reports a credential check. TestConnection never returns
// an error; failures land here as Success=false with a redacted message.
type ConnectionResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// Adapter is the capability set every vendor variant implements.
type Adapter interface {
	// Name returns the provider identifier used for registry lookup and
	// pricing table selection.
	Name() string

	// TestConnection makes the cheapest possible authenticated call to
	// validate a credential. It never fails; all outcomes resolve into the
	// returned ConnectionResult.
	TestConnection(ctx context.Context, key, baseURL string) ConnectionResult

	// Complete executes one chat completion. Errors carry a secret-redacted
	// message.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// FetchAvailableModels discovers models from the vendor, falling back to
	// the static list on any failure. Ordering is cosmetic.
	FetchAvailableModels(ctx context.Context, key, baseURL string) []string

	// DefaultModel returns the vendor's fallback model, always available
	// offline.
	DefaultModel() string

	// SupportedModels returns the static per-vendor allow-list, always
	// available offline.
	SupportedModels() []string
}

// RedactedError wraps err with all occurrences of key removed from its
// message. Adapters apply it to every error that may echo the credential
// (vendor error bodies commonly do).
func RedactedError(err error, key string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s", secret.Redact(err.Error(), key))
}

// IntPtr returns a pointer to v. Convenience for nullable token counts.
func IntPtr(v int) *int { return &v }
