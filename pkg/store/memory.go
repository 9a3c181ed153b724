package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/shopmate/internal/models"
)

// MemoryStore keeps embedded chunks in process and ranks them by cosine
// similarity. Equal scores keep insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []models.EmbeddedChunk
	dim     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Replace(ctx context.Context, chunks []models.EmbeddedChunk) error {
	dim := 0
	entries := make([]models.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		if len(c.Vector) == 0 {
			return fmt.Errorf("chunk %d has an empty vector", i)
		}
		if dim == 0 {
			dim = len(c.Vector)
		} else if len(c.Vector) != dim {
			return fmt.Errorf("chunk %d has dimension %d, want %d", i, len(c.Vector), dim)
		}
		entries[i] = c
	}

	s.mu.Lock()
	s.entries = entries
	s.dim = dim
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int) ([]models.Chunk, error) {
	s.mu.RLock()
	entries, dim := s.entries, s.dim
	s.mu.RUnlock()

	if len(entries) == 0 || k <= 0 {
		return []models.Chunk{}, nil
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(vector), dim)
	}

	type scored struct {
		pos   int
		score float64
	}
	ranked := make([]scored, len(entries))
	for i, e := range entries {
		ranked[i] = scored{pos: i, score: cosine(vector, e.Vector)}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	k = min(k, len(ranked))
	out := make([]models.Chunk, k)
	for i := 0; i < k; i++ {
		out[i] = entries[ranked[i].pos].Chunk
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Close() {}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
