package model

import (
	"fmt"
	"sync"
)

// EmbedderInterface produces a fixed-length vector for a piece of text.
// The same embedder instance must serve both indexing and querying,
// mixing models silently produces meaningless distances.
type EmbedderInterface interface {
	Embed(text string) ([]float32, error)
	Model() string
}

// Embedder wraps a concrete embedder and pins the vector dimensionality
// after the first successful call. A dimensionality change mid-run means
// the backing model changed under us, which is a hard error.
type Embedder struct {
	inner EmbedderInterface

	mu  sync.Mutex
	dim int
}

func NewEmbedder(inner EmbedderInterface) *Embedder {
	return &Embedder{inner: inner}
}

func (e *Embedder) Model() string { return e.inner.Model() }

func (e *Embedder) Embed(text string) ([]float32, error) {
	embedding, err := e.inner.Embed(text)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dim == 0 {
		e.dim = len(embedding)
	} else if len(embedding) != e.dim {
		return nil, fmt.Errorf("embedding dimensionality changed: got %d, index uses %d", len(embedding), e.dim)
	}
	return embedding, nil
}

// Dim reports the pinned dimensionality, 0 before the first call.
func (e *Embedder) Dim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}
