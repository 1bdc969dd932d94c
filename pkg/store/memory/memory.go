package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/store"
)

// Store is an in-process implementation of store.GraphStore and
// store.VectorIndex. It backs tests and single-node deployments; the pgx
// store is the multi-instance equivalent.
type Store struct {
	mu sync.RWMutex

	sources    map[string]*common.Source
	sourceByFP map[string]string

	entities  map[string]*common.Entity
	redirects map[string]string

	chunks    map[string]*common.Chunk
	chunkByFP map[string]string

	edges map[string]*common.Edge

	vectors map[string][]float32
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sources:    make(map[string]*common.Source),
		sourceByFP: make(map[string]string),
		entities:   make(map[string]*common.Entity),
		redirects:  make(map[string]string),
		chunks:     make(map[string]*common.Chunk),
		chunkByFP:  make(map[string]string),
		edges:      make(map[string]*common.Edge),
		vectors:    make(map[string][]float32),
	}
}

func (s *Store) GetOrCreateSource(ctx context.Context, src *common.Source) (*common.Source, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.sourceByFP[src.Fingerprint]; ok {
		existing := s.sources[id]
		cp := *existing
		return &cp, false, nil
	}

	cp := *src
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.sources[cp.ID] = &cp
	s.sourceByFP[cp.Fingerprint] = cp.ID
	out := cp
	return &out, true, nil
}

func (s *Store) Source(ctx context.Context, id string) (*common.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *src
	return &cp, nil
}

func (s *Store) AppendSourceLocator(ctx context.Context, sourceID, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[sourceID]
	if !ok {
		return store.ErrNotFound
	}
	if locator == src.Locator {
		return nil
	}
	for _, l := range src.MergedLocators {
		if l == locator {
			return nil
		}
	}
	src.MergedLocators = append(src.MergedLocators, locator)
	return nil
}

func (s *Store) GetOrCreateChunk(ctx context.Context, chunk *common.Chunk) (*common.Chunk, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.chunkByFP[chunk.Fingerprint]; ok {
		cp := cloneChunk(s.chunks[id])
		return cp, false, nil
	}

	cp := cloneChunk(chunk)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.chunks[cp.ID] = cp
	s.chunkByFP[cp.Fingerprint] = cp.ID
	return cloneChunk(cp), true, nil
}

func (s *Store) Chunk(ctx context.Context, id string) (*common.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneChunk(c), nil
}

// LinkChunkEntities maintains the bidirectional entity<->chunk invariant:
// after it returns, every linked entity lists the chunk and the chunk lists
// every linked entity.
func (s *Store) LinkChunkEntities(ctx context.Context, chunkID string, entityIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, ok := s.chunks[chunkID]
	if !ok {
		return store.ErrNotFound
	}

	for _, eid := range entityIDs {
		eid = s.resolveIDLocked(eid)
		entity, ok := s.entities[eid]
		if !ok {
			return store.ErrNotFound
		}
		chunk.EntityIDs = appendUnique(chunk.EntityIDs, eid)
		entity.ChunkIDs = appendUnique(entity.ChunkIDs, chunkID)
	}
	return nil
}

func cloneChunk(c *common.Chunk) *common.Chunk {
	cp := *c
	cp.EntityIDs = append([]string(nil), c.EntityIDs...)
	cp.Embedding = append([]float32(nil), c.Embedding...)
	return &cp
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
