package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/ai"
	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Coordinator deduplicates chunks by content fingerprint and keeps the
// entity↔chunk linkage bidirectional. A new chunk gets an embedding; a
// reused one only has its entity set widened.
type Coordinator struct {
	store    store.GraphStore
	index    store.VectorIndex
	embedder ai.Embedder
}

func NewCoordinator(s store.GraphStore, index store.VectorIndex, embedder ai.Embedder) *Coordinator {
	return &Coordinator{store: s, index: index, embedder: embedder}
}

// UpsertChunk stores a text fragment, reusing an existing chunk when the
// same text was seen before. Either way, entityIDs are unioned into the
// chunk and the chunk id is mirrored into each entity.
func (c *Coordinator) UpsertChunk(ctx context.Context, text, sourceID string, index int, entityIDs []string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	chunk := &common.Chunk{
		ID:          id,
		Text:        text,
		Fingerprint: util.Fingerprint(text),
		SourceID:    sourceID,
		Index:       index,
		CreatedAt:   time.Now().UTC(),
	}

	stored, created, err := c.store.GetOrCreateChunk(ctx, chunk)
	if err != nil {
		return "", fmt.Errorf("upsert chunk: %w", err)
	}

	if len(entityIDs) > 0 {
		if err := c.store.LinkChunkEntities(ctx, stored.ID, entityIDs); err != nil {
			return "", fmt.Errorf("link chunk %s entities: %w", stored.ID, err)
		}
	}

	if !created {
		logger.Debug("Reused chunk", "id", stored.ID, "source", sourceID, "index", index)
		return stored.ID, nil
	}

	embedding, err := c.embedder.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		return "", fmt.Errorf("%w: embed chunk %s: %w", ErrTransient, stored.ID, err)
	}
	if err := c.index.IndexChunk(ctx, stored.ID, embedding); err != nil {
		return "", fmt.Errorf("%w: index chunk %s: %w", ErrTransient, stored.ID, err)
	}

	return stored.ID, nil
}
