// Package retrieval fuses three concurrent search strategies into one
// ranked result set: vector similarity over chunk embeddings, lexical
// entity search, and graph expansion from the strongest lexical seeds.
package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/ai"
	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/store"
)

const (
	methodVector  = "vector"
	methodLexical = "lexical"
	methodGraph   = "graph"
)

// Filters narrows a retrieval call.
type Filters struct {
	Jurisdiction string
	Limit        int
}

// Result is a fused ranked list. Degraded is set when at least one strategy
// timed out or failed and the ranking was computed from the rest.
type Result struct {
	Items    []common.RankedItem `json:"items"`
	Degraded bool                `json:"degraded"`
}

type Engine struct {
	store    store.GraphStore
	index    store.VectorIndex
	embedder ai.Embedder

	rrfK            int
	topN            int
	seedCount       int
	hopBound        int
	limit           int
	strategyTimeout time.Duration
}

type Option func(*Engine)

// WithRRFK overrides the fusion constant.
func WithRRFK(k int) Option {
	return func(e *Engine) {
		e.rrfK = k
	}
}

// WithStrategyTimeout bounds each individual strategy.
func WithStrategyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.strategyTimeout = d
	}
}

// WithHopBound caps graph expansion depth.
func WithHopBound(hops int) Option {
	return func(e *Engine) {
		e.hopBound = hops
	}
}

func NewEngine(s store.GraphStore, index store.VectorIndex, embedder ai.Embedder, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		index:           index,
		embedder:        embedder,
		rrfK:            util.GetEnvInt("RETRIEVAL_RRF_K", DefaultRRFK),
		topN:            util.GetEnvInt("RETRIEVAL_TOP_N", 10),
		seedCount:       util.GetEnvInt("RETRIEVAL_GRAPH_SEEDS", 3),
		hopBound:        util.GetEnvInt("RETRIEVAL_HOP_BOUND", 2),
		limit:           util.GetEnvInt("RETRIEVAL_LIMIT", 10),
		strategyTimeout: util.GetEnvDuration("RETRIEVAL_STRATEGY_TIMEOUT", 5*time.Second),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type strategyResult struct {
	method string
	items  []common.RankedItem
	err    error
}

// Retrieve runs the three strategies in parallel, each under its own
// timeout, and fuses whatever completed. A strategy failure degrades the
// result instead of failing the call; cancelling ctx stops all three.
func (e *Engine) Retrieve(ctx context.Context, query string, filters Filters) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	strategies := map[string]func(context.Context) ([]common.RankedItem, error){
		methodVector: func(ctx context.Context) ([]common.RankedItem, error) {
			return e.vectorSearch(ctx, query)
		},
		methodLexical: func(ctx context.Context) ([]common.RankedItem, error) {
			return e.lexicalSearch(ctx, query, filters.Jurisdiction)
		},
		methodGraph: func(ctx context.Context) ([]common.RankedItem, error) {
			return e.graphExpand(ctx, query, filters.Jurisdiction)
		},
	}

	results := make(chan strategyResult, len(strategies))
	for method, run := range strategies {
		method, run := method, run
		go func() {
			sCtx, cancel := context.WithTimeout(ctx, e.strategyTimeout)
			defer cancel()
			items, err := run(sCtx)
			results <- strategyResult{method: method, items: items, err: err}
		}()
	}

	lists := make(map[string][]common.RankedItem, len(strategies))
	degraded := false
	for range strategies {
		res := <-results
		if res.err != nil {
			if errors.Is(res.err, context.Canceled) && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Retrieval strategy degraded", "method", res.method, "err", res.err)
			degraded = true
			continue
		}
		lists[res.method] = res.items
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = e.limit
	}
	return &Result{
		Items:    fuseRRF(lists, e.rrfK, limit),
		Degraded: degraded,
	}, nil
}

func (e *Engine) vectorSearch(ctx context.Context, query string) ([]common.RankedItem, error) {
	embedding, err := e.embedder.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, err
	}

	hits, err := e.index.Search(ctx, embedding, e.topN)
	if err != nil {
		return nil, err
	}

	items := make([]common.RankedItem, 0, len(hits))
	for _, hit := range hits {
		chunk, err := e.store.Chunk(ctx, hit.ChunkID)
		if err != nil {
			return nil, err
		}
		items = append(items, chunkItem(chunk))
	}
	return items, nil
}

func (e *Engine) lexicalSearch(ctx context.Context, query, jurisdiction string) ([]common.RankedItem, error) {
	hits, err := e.store.SearchEntities(ctx, store.EntityQuery{
		Text:         query,
		Jurisdiction: jurisdiction,
		Limit:        e.topN,
	})
	if err != nil {
		return nil, err
	}

	items := make([]common.RankedItem, 0, len(hits))
	for i := range hits {
		items = append(items, entityItem(&hits[i].Entity))
	}
	return items, nil
}

// graphExpand breadth-first walks outgoing edges from the strongest lexical
// seeds, collecting reached entities and their chunks. Depth is bounded so
// cycles terminate; seeds themselves are the lexical strategy's findings
// and are not re-reported here.
func (e *Engine) graphExpand(ctx context.Context, query, jurisdiction string) ([]common.RankedItem, error) {
	seeds, err := e.store.SearchEntities(ctx, store.EntityQuery{
		Text:         query,
		Jurisdiction: jurisdiction,
		Limit:        e.seedCount,
	})
	if err != nil {
		return nil, err
	}

	var items []common.RankedItem
	visited := make(map[string]bool)
	seenChunk := make(map[string]bool)

	frontier := make([]string, 0, len(seeds))
	for i := range seeds {
		visited[seeds[i].Entity.ID] = true
		frontier = append(frontier, seeds[i].Entity.ID)
	}

	for hop := 0; hop < e.hopBound && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			edges, err := e.store.EdgesFrom(ctx, id, "")
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				if visited[edge.To] {
					continue
				}
				visited[edge.To] = true
				next = append(next, edge.To)

				ent, err := e.store.Entity(ctx, edge.To)
				if err != nil {
					return nil, err
				}
				items = append(items, entityItem(ent))

				for _, chunkID := range ent.ChunkIDs {
					if seenChunk[chunkID] {
						continue
					}
					seenChunk[chunkID] = true
					chunk, err := e.store.Chunk(ctx, chunkID)
					if err != nil {
						return nil, err
					}
					items = append(items, chunkItem(chunk))
				}
			}
		}
		frontier = next
	}
	return items, nil
}

func entityItem(ent *common.Entity) common.RankedItem {
	return common.RankedItem{
		Kind:      common.RankedEntity,
		ID:        ent.ID,
		Entity:    ent,
		CreatedAt: ent.CreatedAt,
	}
}

func chunkItem(chunk *common.Chunk) common.RankedItem {
	return common.RankedItem{
		Kind:      common.RankedChunk,
		ID:        chunk.ID,
		Chunk:     chunk,
		CreatedAt: chunk.CreatedAt,
	}
}
