package store

import (
	"context"
	"errors"

	"github.com/civicworks/lexgraph/backend/pkg/common"
)

// ErrNotFound is returned by lookups for ids and fingerprints that do not
// exist in the store.
var ErrNotFound = errors.New("store: not found")

// ScoredEntity is a lexical search hit with its relevance score.
type ScoredEntity struct {
	Entity common.Entity
	Score  float64
}

// VectorHit is a nearest-neighbor match from the vector index.
type VectorHit struct {
	ChunkID    string
	Similarity float64
}

// EntityQuery parameterizes lexical entity search.
type EntityQuery struct {
	Text         string
	Type         common.EntityType // empty matches all types
	Jurisdiction string            // empty matches all jurisdictions
	Limit        int
}

// GraphStore is the persistent adapter for sources, entities, chunks, and
// edges. The fingerprint-keyed GetOrCreate operations are atomic: under
// concurrent writers at most one record exists per fingerprint and every
// caller observes the same record.
type GraphStore interface {
	// GetOrCreateSource persists src unless a source with the same content
	// fingerprint already exists, in which case the existing record is
	// returned with created=false and nothing is written.
	GetOrCreateSource(ctx context.Context, src *common.Source) (*common.Source, bool, error)
	Source(ctx context.Context, id string) (*common.Source, error)
	// AppendSourceLocator records an additional locator on an existing
	// source. Duplicate locators are ignored.
	AppendSourceLocator(ctx context.Context, sourceID, locator string) error

	SaveEntity(ctx context.Context, entity *common.Entity) error
	// Entity resolves an id to its entity, following tombstone redirects to
	// the surviving entity.
	Entity(ctx context.Context, id string) (*common.Entity, error)
	UpdateEntity(ctx context.Context, entity *common.Entity) error
	// TombstoneEntity marks loserID as merged into winnerID. Lookups of
	// loserID redirect; the tombstone itself is never deleted.
	TombstoneEntity(ctx context.Context, loserID, winnerID string) error
	// SearchEntities ranks non-tombstoned entities by lexical relevance of
	// the query text against name and description.
	SearchEntities(ctx context.Context, q EntityQuery) ([]ScoredEntity, error)

	// GetOrCreateChunk persists chunk unless one with the same content
	// fingerprint exists, in which case the existing record is returned
	// with created=false.
	GetOrCreateChunk(ctx context.Context, chunk *common.Chunk) (*common.Chunk, bool, error)
	Chunk(ctx context.Context, id string) (*common.Chunk, error)
	// LinkChunkEntities unions entityIDs into the chunk's entity set and
	// mirrors the chunk id into each entity's chunk set.
	LinkChunkEntities(ctx context.Context, chunkID string, entityIDs []string) error

	SaveEdge(ctx context.Context, edge *common.Edge) error
	// EdgesFrom returns outgoing edges of the given type; typ=="" returns
	// all outgoing edges.
	EdgesFrom(ctx context.Context, from string, typ common.EdgeType) ([]common.Edge, error)
	// EdgeBetween returns the edge from→to of the given type, or
	// ErrNotFound.
	EdgeBetween(ctx context.Context, from, to string, typ common.EdgeType) (*common.Edge, error)
	DeleteEdge(ctx context.Context, id string) error
}

// VectorIndex is the nearest-neighbor adapter over chunk embeddings.
type VectorIndex interface {
	IndexChunk(ctx context.Context, chunkID string, embedding []float32) error
	Search(ctx context.Context, embedding []float32, topN int) ([]VectorHit, error)
}

// Locker serializes work under a named key. The in-process implementation
// is a keyed mutex; the Postgres implementation is a lease lock shared by
// all workers.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
