package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newFakeOllama(t *testing.T, embedding []float32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if req.Model == "" || req.Prompt == "" {
			http.Error(w, "missing fields", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: embedding})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func TestOllamaEmbedPadsAndNormalizes(t *testing.T) {
	srv := newFakeOllama(t, []float32{3, 4})
	defer srv.Close()

	eng, err := NewOllamaEngine(srv.URL, "embeddinggemma", 4)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	vec, err := eng.Embed(context.Background(), "beliefs about churn")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected padded width 4, got %d", len(vec))
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Fatalf("expected normalized prefix, got %v", vec)
	}
	if vec[2] != 0 || vec[3] != 0 {
		t.Fatalf("expected zero padding, got %v", vec)
	}
}

func TestOllamaEmbedBatchSequential(t *testing.T) {
	srv := newFakeOllama(t, []float32{1, 0})
	defer srv.Close()

	eng, _ := NewOllamaEngine(srv.URL, "embeddinggemma", 2)
	vecs, err := eng.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
}

func TestOllamaEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	eng, _ := NewOllamaEngine(srv.URL, "missing-model", 4)
	if _, err := eng.Embed(context.Background(), "text"); err == nil {
		t.Fatalf("expected error from non-200 response")
	}
}

func TestOllamaHealthCheck(t *testing.T) {
	srv := newFakeOllama(t, []float32{1})
	eng, _ := NewOllamaEngine(srv.URL, "embeddinggemma", 4)

	if err := eng.HealthCheck(context.Background()); err != nil {
		t.Fatalf("healthy server reported unhealthy: %v", err)
	}

	srv.Close()
	if err := eng.HealthCheck(context.Background()); err == nil {
		t.Fatalf("closed server should fail the health check")
	}
}

func TestOllamaDefaults(t *testing.T) {
	eng, err := NewOllamaEngine("", "", 0)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if eng.endpoint != "http://localhost:11434" || eng.model != "embeddinggemma" {
		t.Fatalf("unexpected defaults: %s %s", eng.endpoint, eng.model)
	}
	if eng.Dimensions() != 1024 {
		t.Fatalf("expected 1024 default dims, got %d", eng.Dimensions())
	}
	if eng.Name() != "ollama:embeddinggemma" {
		t.Fatalf("unexpected name: %s", eng.Name())
	}
}
