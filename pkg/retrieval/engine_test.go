package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/store/memory"
)

// mapEmbedder returns a canned vector per text needle, so similarity in
// tests is controlled instead of learned.
type mapEmbedder struct {
	vectors map[string][]float32
}

func (e *mapEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	text := strings.ToLower(string(input))
	for needle, vec := range e.vectors {
		if strings.Contains(text, needle) {
			return vec, nil
		}
	}
	return []float32{0, 0, 1}, nil
}

type failEmbedder struct{}

func (failEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}

type slowEmbedder struct{}

func (slowEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// habitabilityGraph seeds a store with one relevant cluster (habitability
// law, its chunk, an enabled remedy) and one unrelated entity.
func habitabilityGraph(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	entities := []*common.Entity{
		{ID: "law-habit", Type: common.EntityLaw, Name: "Warranty of Habitability",
			Description: "Implied warranty that rental housing is livable", CreatedAt: base},
		{ID: "remedy-abate", Type: common.EntityRemedy, Name: "Rent Abatement",
			Description: "Rent reduction remedy for unlivable conditions", CreatedAt: base.Add(time.Minute)},
		{ID: "perm-parking", Type: common.EntityProcedure, Name: "Parking Permit Renewal",
			Description: "Renewing a municipal parking permit", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, ent := range entities {
		if err := s.SaveEntity(ctx, ent); err != nil {
			t.Fatalf("save entity %s: %v", ent.ID, err)
		}
	}

	chunks := []*common.Chunk{
		{ID: "chunk-habit", Text: "The warranty of habitability requires working heat and hot water.",
			Fingerprint: "fp-habit", SourceID: "src-1", CreatedAt: base},
		{ID: "chunk-parking", Text: "Parking permits are renewed every two years.",
			Fingerprint: "fp-parking", SourceID: "src-2", CreatedAt: base},
	}
	for _, chunk := range chunks {
		if _, _, err := s.GetOrCreateChunk(ctx, chunk); err != nil {
			t.Fatalf("save chunk %s: %v", chunk.ID, err)
		}
	}
	if err := s.LinkChunkEntities(ctx, "chunk-habit", []string{"law-habit"}); err != nil {
		t.Fatalf("link chunk: %v", err)
	}
	if err := s.IndexChunk(ctx, "chunk-habit", []float32{1, 0, 0}); err != nil {
		t.Fatalf("index chunk: %v", err)
	}
	if err := s.IndexChunk(ctx, "chunk-parking", []float32{0, 1, 0}); err != nil {
		t.Fatalf("index chunk: %v", err)
	}

	err := s.SaveEdge(ctx, &common.Edge{
		ID: "edge-1", From: "law-habit", To: "remedy-abate", Type: common.EdgeEnables, CreatedAt: base,
	})
	if err != nil {
		t.Fatalf("save edge: %v", err)
	}
	return s
}

func habitabilityEmbedder() *mapEmbedder {
	return &mapEmbedder{vectors: map[string][]float32{"habitability": {1, 0, 0}}}
}

func TestEngineRetrieve(t *testing.T) {
	t.Parallel()

	t.Run("relevant_results_outrank_unrelated", func(t *testing.T) {
		t.Parallel()
		s := habitabilityGraph(t)
		e := NewEngine(s, s, habitabilityEmbedder())

		res, err := e.Retrieve(context.Background(), "warranty of habitability", Filters{})
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if res.Degraded {
			t.Fatal("got degraded=true with all strategies healthy")
		}
		if len(res.Items) == 0 {
			t.Fatal("got no items")
		}

		top := res.Items[0]
		if top.ID == "perm-parking" || top.ID == "chunk-parking" {
			t.Fatalf("got unrelated top item %q", top.ID)
		}

		rank := make(map[string]int)
		for i, item := range res.Items {
			rank[item.ID] = i + 1
		}
		lawRank, ok := rank["law-habit"]
		if !ok {
			t.Fatal("habitability law missing from results")
		}
		if parkingRank, ok := rank["perm-parking"]; ok && parkingRank < lawRank {
			t.Fatalf("unrelated entity ranked %d above habitability law at %d", parkingRank, lawRank)
		}
	})

	t.Run("graph_expansion_reaches_connected_remedy", func(t *testing.T) {
		t.Parallel()
		s := habitabilityGraph(t)
		e := NewEngine(s, s, habitabilityEmbedder())

		res, err := e.Retrieve(context.Background(), "warranty of habitability", Filters{})
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}

		for _, item := range res.Items {
			if item.ID != "remedy-abate" {
				continue
			}
			for _, method := range item.Methods {
				if method == methodGraph {
					return
				}
			}
			t.Fatalf("remedy found but methods %v lack %q", item.Methods, methodGraph)
		}
		t.Fatal("remedy connected to the lexical seed never surfaced")
	})

	t.Run("strategy_failure_degrades_instead_of_failing", func(t *testing.T) {
		t.Parallel()
		s := habitabilityGraph(t)
		e := NewEngine(s, s, failEmbedder{})

		res, err := e.Retrieve(context.Background(), "warranty of habitability", Filters{})
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if !res.Degraded {
			t.Fatal("got degraded=false with the vector strategy failing")
		}
		found := false
		for _, item := range res.Items {
			if item.ID == "law-habit" {
				found = true
			}
		}
		if !found {
			t.Fatal("lexical results missing from a degraded ranking")
		}
	})

	t.Run("strategy_timeout_degrades", func(t *testing.T) {
		t.Parallel()
		s := habitabilityGraph(t)
		e := NewEngine(s, s, slowEmbedder{}, WithStrategyTimeout(20*time.Millisecond))

		res, err := e.Retrieve(context.Background(), "warranty of habitability", Filters{})
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if !res.Degraded {
			t.Fatal("got degraded=false with the vector strategy timing out")
		}
	})

	t.Run("cancelled_context_fails_the_call", func(t *testing.T) {
		t.Parallel()
		s := habitabilityGraph(t)
		e := NewEngine(s, s, habitabilityEmbedder())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := e.Retrieve(ctx, "warranty of habitability", Filters{}); !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	})

	t.Run("limit_caps_result_size", func(t *testing.T) {
		t.Parallel()
		s := habitabilityGraph(t)
		e := NewEngine(s, s, habitabilityEmbedder())

		res, err := e.Retrieve(context.Background(), "warranty of habitability", Filters{Limit: 1})
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if len(res.Items) != 1 {
			t.Fatalf("got %d items, want 1", len(res.Items))
		}
	})
}
