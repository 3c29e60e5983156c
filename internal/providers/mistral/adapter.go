// Package mistral implements the provider adapter for the Mistral API, which
// follows the OpenAI chat-completions wire shape.
package mistral

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

const defaultBaseURL = "https://api.mistral.ai"

var supportedModels = []string{
	"mistral-large-latest",
	"mistral-medium-latest",
	"mistral-small-latest",
	"open-mistral-nemo",
	"codestral-latest",
}

// Adapter implements providers.Adapter for Mistral.
type Adapter struct {
	client *http.Client
}

// New creates a new Mistral adapter. A zero timeout defaults to 60s.
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

func (a *Adapter) Name() string { return "mistral" }

func (a *Adapter) DefaultModel() string { return "mistral-small-latest" }

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
		ids = append(ids, m.ID)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := tierScore(ids[i]), tierScore(ids[j])
		if ti != tj {
			return ti > tj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func tierScore(id string) int {
	switch {
	case strings.Contains(id, "large"):
		return 3
	case strings.Contains(id, "medium"):
		return 2
	case strings.Contains(id, "small"):
		return 1
	}
	return 0
}
