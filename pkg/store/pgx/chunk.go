package pgx

import (
	"context"
	"errors"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

func (s *Store) GetOrCreateChunk(ctx context.Context, chunk *common.Chunk) (*common.Chunk, bool, error) {
	row := s.conn.QueryRow(ctx, insertChunkSQL,
		chunk.ID,
		chunk.Text,
		chunk.Fingerprint,
		chunk.SourceID,
		chunk.Index,
		chunk.EntityIDs,
	)

	created, err := scanChunk(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return nil, false, err
	}

	existing, err := scanChunk(s.conn.QueryRow(ctx, getChunkByFingerprintSQL, chunk.Fingerprint))
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) Chunk(ctx context.Context, id string) (*common.Chunk, error) {
	chunk, err := scanChunk(s.conn.QueryRow(ctx, getChunkSQL, id))
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return chunk, nil
}

func (s *Store) LinkChunkEntities(ctx context.Context, chunkID string, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}

	// Resolve tombstone redirects before linking so merged entities never
	// reappear on chunks.
	resolved := make([]string, 0, len(entityIDs))
	for _, id := range entityIDs {
		ent, err := s.Entity(ctx, id)
		if err != nil {
			return err
		}
		resolved = append(resolved, ent.ID)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, linkChunkEntitiesSQL, chunkID, resolved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	for _, id := range resolved {
		if _, err := tx.Exec(ctx, linkEntityChunkSQL, id, chunkID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) IndexChunk(ctx context.Context, chunkID string, embedding []float32) error {
	tag, err := s.conn.Exec(ctx, indexChunkSQL, chunkID, pgvector.NewVector(embedding))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Search(ctx context.Context, embedding []float32, topN int) ([]store.VectorHit, error) {
	if topN <= 0 {
		topN = 10
	}

	rows, err := s.conn.Query(ctx, vectorSearchSQL, pgvector.NewVector(embedding), topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []store.VectorHit
	for rows.Next() {
		var h store.VectorHit
		if err := rows.Scan(&h.ChunkID, &h.Similarity); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func scanChunk(row pgxv5.Row) (*common.Chunk, error) {
	var chunk common.Chunk
	var embedding *pgvector.Vector
	err := row.Scan(
		&chunk.ID,
		&chunk.Text,
		&chunk.Fingerprint,
		&chunk.SourceID,
		&chunk.Index,
		&chunk.EntityIDs,
		&embedding,
		&chunk.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		chunk.Embedding = embedding.Slice()
	}
	return &chunk, nil
}

const chunkColumns = `id, content, fingerprint, source_id, chunk_index,
entity_ids, embedding, created_at`

const insertChunkSQL = `
INSERT INTO chunks (id, content, fingerprint, source_id, chunk_index, entity_ids)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (fingerprint) DO NOTHING
RETURNING ` + chunkColumns + `;
`

const getChunkSQL = `
SELECT ` + chunkColumns + `
FROM chunks
WHERE id = $1;
`

const getChunkByFingerprintSQL = `
SELECT ` + chunkColumns + `
FROM chunks
WHERE fingerprint = $1;
`

const linkChunkEntitiesSQL = `
UPDATE chunks
SET entity_ids = (
	SELECT coalesce(array_agg(e ORDER BY ord), '{}')
	FROM (
		SELECT DISTINCT ON (e) e, ord
		FROM unnest(entity_ids || $2::text[]) WITH ORDINALITY AS u(e, ord)
		ORDER BY e, ord
	) dedup
)
WHERE id = $1;
`

const linkEntityChunkSQL = `
UPDATE entities
SET chunk_ids = array_append(chunk_ids, $2)
WHERE id = $1
  AND NOT ($2 = ANY(chunk_ids));
`

const indexChunkSQL = `
UPDATE chunks
SET embedding = $2
WHERE id = $1;
`

const vectorSearchSQL = `
SELECT id, 1 - (embedding <=> $1) AS similarity
FROM chunks
WHERE embedding IS NOT NULL
ORDER BY embedding <=> $1
LIMIT $2;
`
