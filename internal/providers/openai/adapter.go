// Package openai implements the provider adapter for the OpenAI API.
package openai

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

const defaultBaseURL = "https://api.openai.com"

var supportedModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-4",
	"gpt-3.5-turbo",
}

// Adapter implements providers.Adapter for OpenAI.
type Adapter struct {
	client *http.Client
}

// New creates a new OpenAI adapter. A zero timeout defaults to 60s.
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

func (a *Adapter) Name() string { return "openai" }

func (a *Adapter) DefaultModel() string { return "gpt-4o" }

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
	return map[string]string{"Authorization": "Bearer " + key}
}

// TestConnection validates a credential with a list-models call, the cheapest
// authenticated endpoint OpenAI exposes.
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

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *Adapter) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}

	body, err := providers.DoRequest(ctx, a.client, baseURL(req.BaseURL)+"/v1/chat/completions", payload, authHeaders(req.Key))
	if err != nil {
		return nil, providers.RedactedError(err, req.Key)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, providers.RedactedError(fmt.Errorf("malformed response: %w", err), req.Key)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("empty response: no choices returned")
	}

	resp := &providers.CompletionResponse{
		Output:       parsed.Choices[0].Message.Content,
		FinishReason: parsed.Choices[0].FinishReason,
	}
	if parsed.Usage != nil {
		resp.InputTokens = providers.IntPtr(parsed.Usage.PromptTokens)
		resp.OutputTokens = providers.IntPtr(parsed.Usage.CompletionTokens)
		resp.TotalTokens = providers.IntPtr(parsed.Usage.TotalTokens)
	} else {
		resp.TokensEstimated = true
	}
	return resp, nil
}

// FetchAvailableModels lists chat-capable models from the API, falling back
// to the static list on any failure. Ordering prefers newer generations and
// is cosmetic only.
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

	var ids []string
	for _, m := range parsed.Data {
		if strings.HasPrefix(m.ID, "gpt-") || strings.HasPrefix(m.ID, "o1") || strings.HasPrefix(m.ID, "o3") {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return a.SupportedModels()
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := modelScore(ids[i]), modelScore(ids[j])
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// modelScore ranks model generations for display. Higher is newer/stronger.
func modelScore(id string) int {
	switch {
	case strings.HasPrefix(id, "o3"):
		return 60
	case strings.HasPrefix(id, "o1"):
		return 50
	case strings.Contains(id, "gpt-4o"):
		return 40
	case strings.Contains(id, "gpt-4"):
		return 30
	case strings.Contains(id, "gpt-3.5"):
		return 20
	}
	return 0
}
