package pgx

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

func (s *Store) SaveEdge(ctx context.Context, edge *common.Edge) error {
	from, err := s.Entity(ctx, edge.From)
	if err != nil {
		return err
	}
	to, err := s.Entity(ctx, edge.To)
	if err != nil {
		return err
	}

	prov := edge.Provenance
	if prov == nil {
		prov = []common.ProvenanceLink{}
	}
	provJSON, err := json.Marshal(prov)
	if err != nil {
		return err
	}

	_, err = s.conn.Exec(ctx, upsertEdgeSQL, edge.ID, from.ID, to.ID, string(edge.Type), provJSON)
	return err
}

func (s *Store) EdgesFrom(ctx context.Context, from string, typ common.EdgeType) ([]common.Edge, error) {
	ent, err := s.Entity(ctx, from)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, edgesFromSQL, ent.ID, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *edge)
	}
	return out, rows.Err()
}

func (s *Store) EdgeBetween(ctx context.Context, from, to string, typ common.EdgeType) (*common.Edge, error) {
	fromEnt, err := s.Entity(ctx, from)
	if err != nil {
		return nil, err
	}
	toEnt, err := s.Entity(ctx, to)
	if err != nil {
		return nil, err
	}

	edge, err := scanEdge(s.conn.QueryRow(ctx, edgeBetweenSQL, fromEnt.ID, toEnt.ID, string(typ)))
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return edge, nil
}

func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, deleteEdgeSQL, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanEdge(row scanner) (*common.Edge, error) {
	var edge common.Edge
	var typ string
	var prov []byte
	err := row.Scan(&edge.ID, &edge.From, &edge.To, &typ, &prov, &edge.CreatedAt)
	if err != nil {
		return nil, err
	}
	edge.Type = common.EdgeType(typ)
	if err := json.Unmarshal(prov, &edge.Provenance); err != nil {
		return nil, err
	}
	return &edge, nil
}

const edgeColumns = `id, from_entity, to_entity, type, provenance, created_at`

// An edge is unique per (from, to, type); re-asserting one merges provenance
// instead of duplicating the row.
const upsertEdgeSQL = `
INSERT INTO edges (id, from_entity, to_entity, type, provenance)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (from_entity, to_entity, type) DO UPDATE
SET provenance = edges.provenance || EXCLUDED.provenance;
`

const edgesFromSQL = `
SELECT ` + edgeColumns + `
FROM edges
WHERE from_entity = $1
  AND ($2 = '' OR type = $2)
ORDER BY created_at ASC, id ASC;
`

const edgeBetweenSQL = `
SELECT ` + edgeColumns + `
FROM edges
WHERE from_entity = $1
  AND to_entity = $2
  AND type = $3;
`

const deleteEdgeSQL = `
DELETE FROM edges
WHERE id = $1;
`
