package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

func openAISettings(baseURL string) domain.EmbeddingSettings {
	return domain.EmbeddingSettings{
		Provider: domain.AIProviderOpenAI,
		APIKey:   "sk-test",
		Model:    "text-embedding-3-small",
		BaseURL:  baseURL,
	}
}

// embeddingServer answers every request with vectors of size dims.
func embeddingServer(t *testing.T, dims int, inspect func(req embeddingRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if inspect != nil {
			inspect(req)
		}

		resp := embeddingResponse{Object: "list", Model: req.Model}
		// Reply out of order to exercise index sorting
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dims)
			vec[0] = float32(i + 1)
			resp.Data = append(resp.Data, embeddingData{Object: "embedding", Index: i, Embedding: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestNewOpenAIEmbedding_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedding(domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI})
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNewOpenAIEmbedding_Defaults(t *testing.T) {
	emb, err := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if emb.model != "text-embedding-3-small" {
		t.Errorf("expected default model text-embedding-3-small, got %s", emb.model)
	}
	if emb.baseURL != "https://api.openai.com/v1" {
		t.Errorf("expected default base URL, got %s", emb.baseURL)
	}
	if emb.maxInputChars != DefaultMaxInputChars {
		t.Errorf("expected max input %d, got %d", DefaultMaxInputChars, emb.maxInputChars)
	}
	if emb.limiter != nil {
		t.Error("expected no rate limiter by default")
	}
}

func TestOpenAIEmbedding_Dimensions(t *testing.T) {
	testCases := []struct {
		model      string
		configured int
		dimensions int
	}{
		{"text-embedding-3-small", 0, 1536},
		{"text-embedding-3-large", 0, 3072},
		{"text-embedding-ada-002", 0, 1536},
		{"unknown-model", 0, 1536},
		{"text-embedding-3-large", 256, 256},
	}

	for _, tc := range testCases {
		t.Run(tc.model, func(t *testing.T) {
			emb, err := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", Model: tc.model, Dimensions: tc.configured})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if emb.Dimensions() != tc.dimensions {
				t.Errorf("expected dimensions %d, got %d", tc.dimensions, emb.Dimensions())
			}
		})
	}
}

func TestOpenAIEmbedding_Embed_EmptyInput(t *testing.T) {
	emb, _ := NewOpenAIEmbedding(openAISettings(""))

	result, err := emb.Embed(context.Background(), []string{})
	if err != nil {
		t.Errorf("unexpected error for empty input: %v", err)
	}
	if result != nil {
		t.Error("expected nil result for empty input")
	}
}

func TestOpenAIEmbedding_Embed_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/embeddings" {
			t.Errorf("expected /embeddings, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("expected Authorization header")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type application/json")
		}
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Dimensions != 3 {
			t.Errorf("expected dimensions 3 requested, got %d", req.Dimensions)
		}

		resp := embeddingResponse{
			Object: "list",
			Data: []embeddingData{
				{Object: "embedding", Index: 1, Embedding: []float32{0.4, 0.5, 0.6}},
				{Object: "embedding", Index: 0, Embedding: []float32{0.1, 0.2, 0.3}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	settings := openAISettings(server.URL)
	settings.Dimensions = 3
	emb, err := NewOpenAIEmbedding(settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := emb.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(result))
	}
	if result[0][0] != 0.1 || result[1][0] != 0.4 {
		t.Error("expected embeddings ordered by input index")
	}
}

func TestOpenAIEmbedding_Embed_TruncatesInput(t *testing.T) {
	var got []string
	server := embeddingServer(t, 4, func(req embeddingRequest) { got = req.Input })
	defer server.Close()

	settings := openAISettings(server.URL)
	settings.Dimensions = 4
	settings.MaxInputChars = 5
	emb, _ := NewOpenAIEmbedding(settings)

	if _, err := emb.Embed(context.Background(), []string{"retention policy", "héllo wörld", "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"reten", "héllo", "ok"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("input %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestOpenAIEmbedding_Embed_DimensionMismatch(t *testing.T) {
	server := embeddingServer(t, 8, nil)
	defer server.Close()

	settings := openAISettings(server.URL)
	settings.Dimensions = 4
	emb, _ := NewOpenAIEmbedding(settings)

	_, err := emb.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestOpenAIEmbedding_Embed_MissingVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embeddingResponse{Object: "list", Data: []embeddingData{}})
	}))
	defer server.Close()

	emb, _ := NewOpenAIEmbedding(openAISettings(server.URL))
	if _, err := emb.EmbedQuery(context.Background(), "test query"); err == nil {
		t.Error("expected error when the API returns no vectors")
	}
}

func TestOpenAIEmbedding_Embed_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{
			Error: &apiError{
				Message: "Invalid API key",
				Type:    "invalid_request_error",
				Code:    "invalid_api_key",
			},
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb, _ := NewOpenAIEmbedding(openAISettings(server.URL))
	_, err := emb.Embed(context.Background(), []string{"test"})
	if err == nil || !strings.Contains(err.Error(), "Invalid API key") {
		t.Errorf("expected API error message, got %v", err)
	}
}

func TestOpenAIEmbedding_Embed_StatusErrors(t *testing.T) {
	tests := []struct {
		status      int
		unavailable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("upstream said no"))
			}))
			defer server.Close()

			emb, _ := NewOpenAIEmbedding(openAISettings(server.URL))
			_, err := emb.Embed(context.Background(), []string{"test"})
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, domain.ErrServiceUnavailable) != tt.unavailable {
				t.Errorf("unexpected classification for %d: %v", tt.status, err)
			}
		})
	}
}

func TestOpenAIEmbedding_Embed_NetworkError(t *testing.T) {
	emb, _ := NewOpenAIEmbedding(openAISettings("http://localhost:99999"))

	_, err := emb.Embed(context.Background(), []string{"test"})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable for network error, got %v", err)
	}
}

func TestOpenAIEmbedding_RateLimitHonoursContext(t *testing.T) {
	server := embeddingServer(t, 1536, nil)
	defer server.Close()

	settings := openAISettings(server.URL)
	settings.RequestsPerSecond = 0.001
	emb, _ := NewOpenAIEmbedding(settings)

	// The first call uses the single burst token
	if _, err := emb.EmbedQuery(context.Background(), "first"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := emb.EmbedQuery(ctx, "second"); err == nil {
		t.Error("expected limiter wait to fail on a cancelled context")
	}
}

func TestOpenAIEmbedding_HealthCheck(t *testing.T) {
	server := embeddingServer(t, 1536, nil)
	defer server.Close()

	emb, _ := NewOpenAIEmbedding(openAISettings(server.URL))
	if err := emb.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected no error from health check, got %v", err)
	}
	if err := emb.Close(); err != nil {
		t.Errorf("expected no error from Close, got %v", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"ééé", 2, "éé"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
