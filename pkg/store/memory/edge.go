package memory

import (
	"context"
	"sort"
	"time"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/store"
)

func (s *Store) SaveEdge(ctx context.Context, edge *common.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *edge
	cp.Provenance = append([]common.ProvenanceLink(nil), edge.Provenance...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.From = s.resolveIDLocked(cp.From)
	cp.To = s.resolveIDLocked(cp.To)
	s.edges[cp.ID] = &cp
	return nil
}

func (s *Store) EdgesFrom(ctx context.Context, from string, typ common.EdgeType) ([]common.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from = s.resolveIDLocked(from)
	var out []common.Edge
	for _, edge := range s.edges {
		if s.resolveIDLocked(edge.From) != from {
			continue
		}
		if typ != "" && edge.Type != typ {
			continue
		}
		cp := *edge
		cp.From = s.resolveIDLocked(edge.From)
		cp.To = s.resolveIDLocked(edge.To)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) EdgeBetween(ctx context.Context, from, to string, typ common.EdgeType) (*common.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from = s.resolveIDLocked(from)
	to = s.resolveIDLocked(to)
	for _, edge := range s.edges {
		if edge.Type == typ && s.resolveIDLocked(edge.From) == from && s.resolveIDLocked(edge.To) == to {
			cp := *edge
			cp.From = from
			cp.To = to
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.edges, id)
	return nil
}
