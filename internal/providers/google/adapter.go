// Package google implements the provider adapter for the Gemini API.
//
// Gemini uses "model" where the neutral request uses "assistant", and takes
// system instructions through a dedicated systemInstruction field rather than
// the content turn list. Both translations happen here.
package google

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

const defaultBaseURL = "https://generativelanguage.googleapis.com"

var supportedModels = []string{
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	"gemini-1.5-flash-8b",
	"gemini-1.0-pro",
}

// Adapter implements providers.Adapter for Google Gemini.
type Adapter struct {
	client *http.Client
}

// New creates a new Gemini adapter. A zero timeout defaults to 60s.
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

func (a *Adapter) Name() string { return "google" }

func (a *Adapter) DefaultModel() string { return "gemini-1.5-flash" }

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
	return map[string]string{"x-goog-api-key": key}
}

func (a *Adapter) TestConnection(ctx context.Context, key, base string) providers.ConnectionResult {
	start := time.Now()
	_, err := providers.DoGet(ctx, a.client, baseURL(base)+"/v1beta/models", authHeaders(key))
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

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (a *Adapter) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	var systemParts []part
	var contents []content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			systemParts = append(systemParts, part{Text: m.Content})
		case "assistant":
			contents = append(contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}

	payload := map[string]any{"contents": contents}
	if len(systemParts) > 0 {
		payload["systemInstruction"] = content{Parts: systemParts}
	}
	genConfig := map[string]any{}
	if req.MaxTokens > 0 {
		genConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		genConfig["temperature"] = *req.Temperature
	}
	if len(genConfig) > 0 {
		payload["generationConfig"] = genConfig
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", baseURL(req.BaseURL), req.Model)
	body, err := providers.DoRequest(ctx, a.client, url, payload, authHeaders(req.Key))
	if err != nil {
		return nil, providers.RedactedError(err, req.Key)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, providers.RedactedError(fmt.Errorf("malformed response: %w", err), req.Key)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("empty response: no candidates returned")
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	resp := &providers.CompletionResponse{
		Output:       sb.String(),
		FinishReason: parsed.Candidates[0].FinishReason,
	}
	if parsed.UsageMetadata != nil {
		resp.InputTokens = providers.IntPtr(parsed.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = providers.IntPtr(parsed.UsageMetadata.CandidatesTokenCount)
		resp.TotalTokens = providers.IntPtr(parsed.UsageMetadata.TotalTokenCount)
	} else {
		resp.TokensEstimated = true
	}
	return resp, nil
}

func (a *Adapter) FetchAvailableModels(ctx context.Context, key, base string) []string {
	body, err := providers.DoGet(ctx, a.client, baseURL(base)+"/v1beta/models", authHeaders(key))
	if err != nil {
		return a.SupportedModels()
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Models) == 0 {
		return a.SupportedModels()
	}

	var ids []string
	for _, m := range parsed.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		if strings.HasPrefix(id, "gemini-") {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return a.SupportedModels()
	}
	// Pro tiers ahead of flash, newer versions first within a tier.
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
	case strings.Contains(id, "pro"):
		return 2
	case strings.Contains(id, "flash"):
		return 1
	}
	return 0
}
