package memory

import (
	"context"
	"math"
	"sort"

	"github.com/civicworks/lexgraph/backend/pkg/store"
)

func (s *Store) IndexChunk(ctx context.Context, chunkID string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors[chunkID] = append([]float32(nil), embedding...)
	return nil
}

func (s *Store) Search(ctx context.Context, embedding []float32, topN int) ([]store.VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topN <= 0 {
		topN = 10
	}

	var hits []store.VectorHit
	for chunkID, vec := range s.vectors {
		sim := cosine(embedding, vec)
		if math.IsNaN(sim) {
			continue
		}
		hits = append(hits, store.VectorHit{ChunkID: chunkID, Similarity: sim})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		// Deterministic order for equal similarities.
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
