package mistral

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
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Bearer auth, got %s", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "Bonjour!"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12},
		})
	}))
	defer ts.Close()

	a := New()
	resp, err := a.Complete(context.Background(), providers.CompletionRequest{
		Model:    "mistral-small-latest",
		Messages: []providers.Message{{Role: "user", Content: "salut"}},
		Key:      "test-key",
		BaseURL:  ts.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Output != "Bonjour!" {
		t.Errorf("unexpected output %q", resp.Output)
	}
	if resp.TotalTokens == nil || *resp.TotalTokens != 12 {
		t.Errorf("unexpected total tokens %v", resp.TotalTokens)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	a := New()
	_, err := a.Complete(context.Background(), providers.CompletionRequest{
		Model:    "mistral-small-latest",
		Messages: []providers.Message{{Role: "user", Content: "salut"}},
		Key:      "test-key",
		BaseURL:  ts.URL,
	})
	if err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestCompleteErrorRedactsKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"key msk-hidden42 rejected"}`))
	}))
	defer ts.Close()

	a := New()
	_, err := a.Complete(context.Background(), providers.CompletionRequest{
		Model:    "mistral-small-latest",
		Messages: []providers.Message{{Role: "user", Content: "salut"}},
		Key:      "msk-hidden42",
		BaseURL:  ts.URL,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "msk-hidden42") {
		t.Errorf("error message leaked the key: %s", err.Error())
	}
}

func TestFetchAvailableModelsRanking(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"id": "mistral-small-latest"},
				{"id": "mistral-large-latest"},
				{"id": "codestral-latest"},
			},
		})
	}))
	defer ts.Close()

	a := New()
	models := a.FetchAvailableModels(context.Background(), "test-key", ts.URL)
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %v", models)
	}
	if models[0] != "mistral-large-latest" {
		t.Errorf("expected large tier ranked first, got %v", models)
	}
}

func TestFetchAvailableModelsFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	a := New()
	models := a.FetchAvailableModels(context.Background(), "test-key", ts.URL)
	if len(models) != len(supportedModels) {
		t.Errorf("expected static fallback list, got %v", models)
	}
}
