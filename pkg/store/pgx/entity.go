package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

// maxRedirectHops bounds tombstone redirect chains so a corrupted cycle
// cannot hang a lookup.
const maxRedirectHops = 16

func (s *Store) SaveEntity(ctx context.Context, entity *common.Entity) error {
	attrs, prov, err := encodeEntityJSON(entity)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, insertEntitySQL,
		entity.ID,
		string(entity.Type),
		entity.Name,
		entity.Description,
		attrs,
		entity.ChunkIDs,
		prov,
		entity.NeedsReview,
		entity.MergedInto,
	)
	return err
}

func (s *Store) Entity(ctx context.Context, id string) (*common.Entity, error) {
	for range maxRedirectHops {
		ent, err := s.entityByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if ent.MergedInto == "" || ent.MergedInto == ent.ID {
			return ent, nil
		}
		id = ent.MergedInto
	}
	return nil, fmt.Errorf("entity redirect chain too long: %s", id)
}

func (s *Store) UpdateEntity(ctx context.Context, entity *common.Entity) error {
	attrs, prov, err := encodeEntityJSON(entity)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx, updateEntitySQL,
		entity.ID,
		string(entity.Type),
		entity.Name,
		entity.Description,
		attrs,
		entity.ChunkIDs,
		prov,
		entity.NeedsReview,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) TombstoneEntity(ctx context.Context, loserID, winnerID string) error {
	tag, err := s.conn.Exec(ctx, tombstoneEntitySQL, loserID, winnerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SearchEntities(ctx context.Context, q store.EntityQuery) ([]store.ScoredEntity, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.conn.Query(ctx, searchEntitiesSQL, q.Text, string(q.Type), q.Jurisdiction, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ScoredEntity
	for rows.Next() {
		ent, score, err := scanScoredEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, store.ScoredEntity{Entity: *ent, Score: score})
	}
	return out, rows.Err()
}

func (s *Store) entityByID(ctx context.Context, id string) (*common.Entity, error) {
	ent, err := scanEntity(s.conn.QueryRow(ctx, getEntitySQL, id))
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return ent, nil
}

func encodeEntityJSON(entity *common.Entity) ([]byte, []byte, error) {
	attrs := entity.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, nil, err
	}

	prov := entity.Provenance
	if prov == nil {
		prov = []common.ProvenanceLink{}
	}
	provJSON, err := json.Marshal(prov)
	if err != nil {
		return nil, nil, err
	}
	return attrsJSON, provJSON, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntityInto(row scanner, extra ...any) (*common.Entity, error) {
	var ent common.Entity
	var typ string
	var attrs, prov []byte

	dest := []any{
		&ent.ID,
		&typ,
		&ent.Name,
		&ent.Description,
		&attrs,
		&ent.ChunkIDs,
		&prov,
		&ent.NeedsReview,
		&ent.MergedInto,
		&ent.CreatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	ent.Type = common.EntityType(typ)
	if err := json.Unmarshal(attrs, &ent.Attributes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(prov, &ent.Provenance); err != nil {
		return nil, err
	}
	return &ent, nil
}

func scanEntity(row scanner) (*common.Entity, error) {
	return scanEntityInto(row)
}

func scanScoredEntity(row scanner) (*common.Entity, float64, error) {
	var score float64
	ent, err := scanEntityInto(row, &score)
	if err != nil {
		return nil, 0, err
	}
	return ent, score, nil
}

const entityColumns = `id, type, name, description, attributes, chunk_ids,
provenance, needs_review, merged_into, created_at`

const insertEntitySQL = `
INSERT INTO entities (id, type, name, description, attributes, chunk_ids,
                      provenance, needs_review, merged_into)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`

const getEntitySQL = `
SELECT ` + entityColumns + `
FROM entities
WHERE id = $1;
`

const updateEntitySQL = `
UPDATE entities
SET type         = $2,
    name         = $3,
    description  = $4,
    attributes   = $5,
    chunk_ids    = $6,
    provenance   = $7,
    needs_review = $8
WHERE id = $1;
`

const tombstoneEntitySQL = `
UPDATE entities
SET merged_into = $2
WHERE id = $1;
`

// Jurisdiction filtering follows provenance: an entity is in a jurisdiction
// when any of its provenance links points at a source from that jurisdiction.
const searchEntitiesSQL = `
SELECT ` + entityColumns + `,
       ts_rank(search, websearch_to_tsquery('english', $1)) AS rank
FROM entities
WHERE merged_into = ''
  AND search @@ websearch_to_tsquery('english', $1)
  AND ($2 = '' OR type = $2)
  AND ($3 = '' OR EXISTS (
        SELECT 1
        FROM jsonb_array_elements(provenance) p
        JOIN sources s ON s.id = p->>'source_id'
        WHERE lower(s.jurisdiction) = lower($3)
  ))
ORDER BY rank DESC, created_at ASC
LIMIT $4;
`
