package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOllamaTestServer fakes the /api/tags and /api/embed endpoints.
func newOllamaTestServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(ollamaModelListResponse{
				Models: []ollamaModelInfo{{Name: "nomic-embed-text:latest"}},
			})
		case "/api/embed":
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			count := 1
			if arr, ok := req.Input.([]any); ok {
				count = len(arr)
			}
			embeddings := make([][]float64, count)
			for i := range embeddings {
				vec := make([]float64, dims)
				vec[0] = 1
				embeddings[i] = vec
			}
			_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllamaEmbedder_EmbedAndDetectDimensions(t *testing.T) {
	srv := newOllamaTestServer(t, 8)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, 8, e.Dimensions())
	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.True(t, e.Available(context.Background()))

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestOllamaEmbedder_EmptyTextZeroVector(t *testing.T) {
	srv := newOllamaTestServer(t, 4)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 4), vec)
}

func TestOllamaEmbedder_BatchPreservesOrder(t *testing.T) {
	srv := newOllamaTestServer(t, 4)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, BatchSize: 2})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	assert.Equal(t, make([]float32, 4), vecs[1])
	assert.NotEqual(t, make([]float32, 4), vecs[0])
}

func TestOllamaEmbedder_UnreachableHost(t *testing.T) {
	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: "http://127.0.0.1:1",
	})
	assert.Error(t, err)
}
