package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Luccama700/ai-labs/internal/providers"
)

func TestCompleteSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-1.5-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("expected x-goog-api-key header, got %s", r.Header.Get("x-goog-api-key"))
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content":      map[string]any{"parts": []map[string]string{{"text": "Hello!"}}},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount":     8,
				"candidatesTokenCount": 2,
				"totalTokenCount":      10,
			},
		})
	}))
	defer ts.Close()

	a := New()
	resp, err := a.Complete(context.Background(), providers.CompletionRequest{
		Model:    "gemini-1.5-flash",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
		Key:      "test-key",
		BaseURL:  ts.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Output != "Hello!" {
		t.Errorf("unexpected output %q", resp.Output)
	}
	if resp.TotalTokens == nil || *resp.TotalTokens != 10 {
		t.Errorf("unexpected total tokens %v", resp.TotalTokens)
	}
}

func TestCompleteRoleTranslation(t *testing.T) {
	var got struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "ok"}}}},
			},
		})
	}))
	defer ts.Close()

	a := New()
	_, err := a.Complete(context.Background(), providers.CompletionRequest{
		Model: "gemini-1.5-flash",
		Messages: []providers.Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
		Key:     "test-key",
		BaseURL: ts.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SystemInstruction == nil || len(got.SystemInstruction.Parts) != 1 || got.SystemInstruction.Parts[0].Text != "be terse" {
		t.Error("expected system message in systemInstruction field")
	}
	if len(got.Contents) != 2 {
		t.Fatalf("expected 2 content turns, got %d", len(got.Contents))
	}
	if got.Contents[0].Role != "user" || got.Contents[1].Role != "model" {
		t.Errorf("expected roles user/model, got %s/%s", got.Contents[0].Role, got.Contents[1].Role)
	}
}

func TestCompleteMissingUsage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "ok"}}}},
			},
		})
	}))
	defer ts.Close()

	a := New()
	resp, err := a.Complete(context.Background(), providers.CompletionRequest{
		Model:    "gemini-1.5-flash",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
		Key:      "test-key",
		BaseURL:  ts.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.TokensEstimated {
		t.Error("expected TokensEstimated when usageMetadata is absent")
	}
}

func TestCompleteErrorRedactsKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"key AIzaSecret123 not valid"}}`))
	}))
	defer ts.Close()

	a := New()
	_, err := a.Complete(context.Background(), providers.CompletionRequest{
		Model:    "gemini-1.5-flash",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
		Key:      "AIzaSecret123",
		BaseURL:  ts.URL,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "AIzaSecret123") {
		t.Errorf("error message leaked the key: %s", err.Error())
	}
}

func TestFetchAvailableModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "models/gemini-1.5-flash"},
				{"name": "models/gemini-1.5-pro"},
				{"name": "models/embedding-001"},
			},
		})
	}))
	defer ts.Close()

	a := New()
	models := a.FetchAvailableModels(context.Background(), "test-key", ts.URL)
	if len(models) != 2 {
		t.Fatalf("expected 2 gemini models, got %v", models)
	}
	if models[0] != "gemini-1.5-pro" {
		t.Errorf("expected pro tier ranked first, got %v", models)
	}
}

func TestFetchAvailableModelsFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := New()
	models := a.FetchAvailableModels(context.Background(), "test-key", ts.URL)
	if len(models) != len(supportedModels) {
		t.Errorf("expected static fallback list, got %v", models)
	}
}
