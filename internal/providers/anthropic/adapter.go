// Package anthropic implements the provider adapter for the Anthropic API.
//
// Anthropic's messages endpoint does not accept system-role turns in the
// message list; any system message is lifted into the top-level "system"
// field before sending.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Luccama700/ai-labs/internal/providers"
	"github.com/Luccama700/ai-labs/internal/secret"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

var supportedModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// Adapter implements providers.Adapter for Anthropic.
type Adapter struct {
	client *http.Client
}

// New creates a new Anthropic adapter. A zero timeout defaults to 60s.
func New(opts ...Option) *Adapter {
	a := &Adapter{client: &http.Client{Timeout: 60 * time.Second}}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.client.Timeout = d
	}
}

func (a *Adapter) Name() string { return "anthropic" }

func (a *Adapter) DefaultModel() string { return "claude-3-5-sonnet-20241022" }

func (a *Adapter) SupportedModels() []string {
	out := make([]string, len(supportedModels))
	copy(out, supportedModels)
	return out
}

func baseURL(override string) string {
	if override != "" {
		return strings.TrimSuffix(override, "/")
	}
	return defaultBaseURL
}

func authHeaders(key string) map[string]string {
	return map[string]string{
		"x-api-key":         key,
		"anthropic-version": apiVersion,
	}
}

func (a *Adapter) TestConnection(ctx context.Context, key, base string) providers.ConnectionResult {
	start := time.Now()
	_, err := providers.DoGet(ctx, a.client, baseURL(base)+"/v1/models", authHeaders(key))
	if err != nil {
		return providers.ConnectionResult{
			Success: false,
			Message: secret.Redact(err.Error(), key),
		}
	}
	return providers.ConnectionResult{
		Success:   true,
		Message:   "Connection successful",
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *Adapter) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	// System turns go into the dedicated field, never the message list.
	var system string
	turns := make([]providers.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}

	payload := map[string]any{
		"model":      req.Model,
		"messages":   turns,
		"max_tokens": defaultMaxTokens,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if system != "" {
		payload["system"] = system
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}

	body, err := providers.DoRequest(ctx, a.client, baseURL(req.BaseURL)+"/v1/messages", payload, authHeaders(req.Key))
	if err != nil {
		return nil, providers.RedactedError(err, req.Key)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, providers.RedactedError(fmt.Errorf("malformed response: %w", err), req.Key)
	}
	if len(parsed.Content) == 0 {
		return nil, fmt.Errorf("empty response: no content blocks returned")
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	resp := &providers.CompletionResponse{
		Output:       sb.String(),
		FinishReason: parsed.StopReason,
	}
	if parsed.Usage != nil {
		resp.InputTokens = providers.IntPtr(parsed.Usage.InputTokens)
		resp.OutputTokens = providers.IntPtr(parsed.Usage.OutputTokens)
		resp.TotalTokens = providers.IntPtr(parsed.Usage.InputTokens + parsed.Usage.OutputTokens)
	} else {
		resp.TokensEstimated = true
	}
	return resp, nil
}

func (a *Adapter) FetchAvailableModels(ctx context.Context, key, base string) []string {
	body, err := providers.DoGet(ctx, a.client, baseURL(base)+"/v1/models", authHeaders(key))
	if err != nil {
		return a.SupportedModels()
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Data) == 0 {
		return a.SupportedModels()
	}

	ids := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if strings.HasPrefix(m.ID, "claude-") {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return a.SupportedModels()
	}
	// Capability tiers first, then reverse-lexicographic so newer date
	// suffixes sort ahead of older ones.
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := tierScore(ids[i]), tierScore(ids[j])
		if ti != tj {
			return ti > tj
		}
		return ids[i] > ids[j]
	})
	return ids
}

func tierScore(id string) int {
	switch {
	case strings.Contains(id, "opus"):
		return 3
	case strings.Contains(id, "sonnet"):
		return 2
	case strings.Contains(id, "haiku"):
		return 1
	}
	return 0
}
