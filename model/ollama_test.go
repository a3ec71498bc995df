package model

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedderNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OllamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello", req.Prompt)

		json.NewEncoder(w).Encode(OllamaEmbeddingResponse{Embedding: []float64{3, 4, 0}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 5*time.Second)
	vec, err := e.Embed("hello")
	require.NoError(t, err)
	require.Len(t, vec, 3)

	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestOllamaEmbedderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "missing", 5*time.Second)
	_, err := e.Embed("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestOllamaEmbedderEmptyEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "m", 5*time.Second)
	_, err := e.Embed("hello")
	require.Error(t, err)
}

type scriptedEmbedder struct {
	vectors [][]float32
	call    int
}

func (s *scriptedEmbedder) Embed(text string) ([]float32, error) {
	v := s.vectors[s.call]
	s.call++
	return v, nil
}

func (s *scriptedEmbedder) Model() string { return "scripted" }

func TestEmbedderPinsDimensionality(t *testing.T) {
	e := NewEmbedder(&scriptedEmbedder{vectors: [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{1, 0},
	}})

	_, err := e.Embed("a")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Dim())

	_, err = e.Embed("b")
	require.NoError(t, err)

	// The backing model changed dimensionality mid-run: hard error,
	// distances against the stored vectors would be meaningless.
	_, err = e.Embed("c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensionality changed")
}
