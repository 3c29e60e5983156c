// Package local implements the provider adapter for OpenAI-compatible local
// servers (Ollama, LM Studio, vLLM, llama.cpp server).
//
// Servers disagree on whether routes are mounted at the root or under /v1,
// so the adapter tries the bare path first and retries the versioned
// alternate once on a 404-class response. Local servers also commonly omit
// usage metadata, in which case token counts come back nil with
// TokensEstimated set.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Luccama700/ai-labs/internal/providers"
	"github.com/Luccama700/ai-labs/internal/secret"
)

const defaultBaseURL = "http://localhost:11434"

var supportedModels = []string{
	"llama3",
	"llama3.1",
	"mistral",
	"qwen2.5",
	"phi3",
}

// Adapter implements providers.Adapter for local OpenAI-compatible servers.
type Adapter struct {
	client *http.Client
}

// New creates a new local adapter. A zero timeout defaults to 120s; local
// inference is slow on modest hardware.
func New(opts ...Option) *Adapter {
	a := &Adapter{client: &http.Client{Timeout: 120 * time.Second}}
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

func (a *Adapter) Name() string { return "local" }

func (a *Adapter) DefaultModel() string { return "llama3" }

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

// authHeaders returns a Bearer header when a key is configured. Most local
// servers ignore it; some gateways in front of them require it.
func authHeaders(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + key}
}

// notFound reports whether err is a 404-class response, meaning the route is
// mounted elsewhere rather than the server being down.
func notFound(err error) bool {
	var se *providers.StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusMethodNotAllowed
	}
	return false
}

func (a *Adapter) TestConnection(ctx context.Context, key, base string) providers.ConnectionResult {
	start := time.Now()
	_, err := providers.DoGet(ctx, a.client, baseURL(base)+"/models", authHeaders(key))
	if notFound(err) {
		_, err = providers.DoGet(ctx, a.client, baseURL(base)+"/v1/models", authHeaders(key))
	}
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

	base := baseURL(req.BaseURL)
	headers := authHeaders(req.Key)
	body, err := providers.DoRequest(ctx, a.client, base+"/chat/completions", payload, headers)
	if notFound(err) {
		body, err = providers.DoRequest(ctx, a.client, base+"/v1/chat/completions", payload, headers)
	}
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
	// Zeroed usage blocks are as common as missing ones on local servers;
	// treat both as absent.
	if parsed.Usage != nil && parsed.Usage.TotalTokens > 0 {
		resp.InputTokens = providers.IntPtr(parsed.Usage.PromptTokens)
		resp.OutputTokens = providers.IntPtr(parsed.Usage.CompletionTokens)
		resp.TotalTokens = providers.IntPtr(parsed.Usage.TotalTokens)
	} else {
		resp.TokensEstimated = true
	}
	return resp, nil
}

func (a *Adapter) FetchAvailableModels(ctx context.Context, key, base string) []string {
	b := baseURL(base)
	headers := authHeaders(key)
	body, err := providers.DoGet(ctx, a.client, b+"/models", headers)
	if notFound(err) {
		body, err = providers.DoGet(ctx, a.client, b+"/v1/models", headers)
	}
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
	sort.Strings(ids)
	return ids
}
