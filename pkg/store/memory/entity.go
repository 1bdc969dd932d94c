package memory

import (
	"context"
	"sort"
	"time"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/store"
)

func (s *Store) SaveEntity(ctx context.Context, entity *common.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneEntity(entity)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.entities[cp.ID] = cp
	return nil
}

func (s *Store) Entity(ctx context.Context, id string) (*common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[s.resolveIDLocked(id)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneEntity(entity), nil
}

func (s *Store) UpdateEntity(ctx context.Context, entity *common.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[entity.ID]; !ok {
		return store.ErrNotFound
	}
	s.entities[entity.ID] = cloneEntity(entity)
	return nil
}

func (s *Store) TombstoneEntity(ctx context.Context, loserID, winnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loser, ok := s.entities[loserID]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := s.entities[winnerID]; !ok {
		return store.ErrNotFound
	}
	loser.MergedInto = winnerID
	s.redirects[loserID] = winnerID
	return nil
}

func (s *Store) SearchEntities(ctx context.Context, q store.EntityQuery) ([]store.ScoredEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var hits []store.ScoredEntity
	for _, entity := range s.entities {
		if entity.MergedInto != "" {
			continue
		}
		if q.Type != "" && entity.Type != q.Type {
			continue
		}
		if q.Jurisdiction != "" && !s.entityInJurisdictionLocked(entity, q.Jurisdiction) {
			continue
		}
		score := lexicalScore(q.Text, entity.Name, entity.Description)
		if score <= 0 {
			continue
		}
		hits = append(hits, store.ScoredEntity{Entity: *cloneEntity(entity), Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Entity.CreatedAt.Before(hits[j].Entity.CreatedAt)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// entityInJurisdictionLocked reports whether any provenance source of the
// entity belongs to the given jurisdiction.
func (s *Store) entityInJurisdictionLocked(entity *common.Entity, jurisdiction string) bool {
	for _, link := range entity.Provenance {
		src, ok := s.sources[link.SourceID]
		if ok && equalFold(src.Jurisdiction, jurisdiction) {
			return true
		}
	}
	return false
}

// resolveIDLocked follows tombstone redirects. Chains of merges resolve to
// the final survivor; a cycle guard bounds the walk.
func (s *Store) resolveIDLocked(id string) string {
	for range len(s.redirects) + 1 {
		next, ok := s.redirects[id]
		if !ok {
			return id
		}
		id = next
	}
	return id
}

func cloneEntity(e *common.Entity) *common.Entity {
	cp := *e
	cp.ChunkIDs = append([]string(nil), e.ChunkIDs...)
	cp.Provenance = append([]common.ProvenanceLink(nil), e.Provenance...)
	if e.Attributes != nil {
		cp.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}
