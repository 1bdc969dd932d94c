package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/ai"
	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/resolve"
	"github.com/civicworks/lexgraph/backend/pkg/store"
	"github.com/civicworks/lexgraph/backend/pkg/store/memory"
)

// scriptedOracle serves canned extractions and confirms same-concept by
// name equality, standing in for the model-backed oracle.
type scriptedOracle struct {
	extractions map[string]*ai.Extraction
	unavailable bool
}

func (o *scriptedOracle) ExtractEntities(ctx context.Context, text string) (*ai.Extraction, error) {
	if o.unavailable {
		return nil, ai.ErrUnavailable
	}
	for needle, ex := range o.extractions {
		if strings.Contains(text, needle) {
			return ex, nil
		}
	}
	return &ai.Extraction{}, nil
}

func (o *scriptedOracle) ConfirmSameConcept(ctx context.Context, a, b common.Candidate) (bool, error) {
	if o.unavailable {
		return false, ai.ErrUnavailable
	}
	return strings.EqualFold(a.Name, b.Name), nil
}

func newTestPipeline(s *memory.Store, oracle *scriptedOracle) *Pipeline {
	registry := NewRegistry(s)
	coordinator := NewCoordinator(s, s, &countingEmbedder{})
	resolver := resolve.New(s, oracle, memory.NewKeyedLock())
	return NewPipeline(registry, coordinator, resolver, oracle, s)
}

func TestPipelineIngestDocument(t *testing.T) {
	t.Parallel()

	moldDoc := Document{
		Locator: "file://mold.txt",
		Text:    "Mold in the bathroom since January. The warranty of habitability covers mold conditions.",
		Meta:    SourceMeta{Jurisdiction: "NY"},
	}
	moldExtraction := &ai.Extraction{
		Candidates: []common.Candidate{
			{Type: common.EntityIssue, Name: "Mold", Description: "Mold growth in a rental unit", Quote: "Mold in the bathroom since January."},
			{Type: common.EntityLaw, Name: "Warranty of Habitability", Description: "Implied warranty of habitable housing"},
		},
		Relations: []ai.CandidateRelation{
			{FromName: "Mold", ToName: "Warranty of Habitability", Type: common.EdgeAppliesTo},
		},
	}

	t.Run("document_produces_entities_chunks_and_edges", func(t *testing.T) {
		t.Parallel()
		s := memory.New()
		oracle := &scriptedOracle{extractions: map[string]*ai.Extraction{"Mold": moldExtraction}}
		p := newTestPipeline(s, oracle)
		ctx := context.Background()

		srcID, skipped, step, err := p.IngestDocument(ctx, moldDoc)
		if err != nil {
			t.Fatalf("ingest: step %s: %v", step, err)
		}
		if skipped {
			t.Fatal("got skipped=true on first ingestion")
		}
		if step != StepComplete {
			t.Fatalf("got step %q, want %q", step, StepComplete)
		}

		issues, err := s.SearchEntities(ctx, store.EntityQuery{Text: "Mold", Type: common.EntityIssue, Limit: 5})
		if err != nil {
			t.Fatalf("search issues: %v", err)
		}
		if len(issues) != 1 {
			t.Fatalf("got %d issue entities, want 1", len(issues))
		}
		issue := issues[0].Entity
		if len(issue.Provenance) == 0 || issue.Provenance[0].SourceID != srcID {
			t.Fatalf("issue provenance %v does not reference source %s", issue.Provenance, srcID)
		}

		laws, err := s.SearchEntities(ctx, store.EntityQuery{Text: "Warranty of Habitability", Type: common.EntityLaw, Limit: 5})
		if err != nil {
			t.Fatalf("search laws: %v", err)
		}
		if len(laws) != 1 {
			t.Fatalf("got %d law entities, want 1", len(laws))
		}

		edge, err := s.EdgeBetween(ctx, issue.ID, laws[0].Entity.ID, common.EdgeAppliesTo)
		if err != nil {
			t.Fatalf("edge lookup: %v", err)
		}
		if len(edge.Provenance) == 0 || edge.Provenance[0].SourceID != srcID {
			t.Fatalf("edge provenance %v does not reference source %s", edge.Provenance, srcID)
		}

		if len(issue.ChunkIDs) == 0 {
			t.Fatal("issue is not linked to any chunk")
		}
		chunk, err := s.Chunk(ctx, issue.ChunkIDs[0])
		if err != nil {
			t.Fatalf("load chunk: %v", err)
		}
		found := false
		for _, eid := range chunk.EntityIDs {
			if eid == issue.ID {
				found = true
			}
		}
		if !found {
			t.Fatalf("chunk %s entity ids %v do not mirror issue %s", chunk.ID, chunk.EntityIDs, issue.ID)
		}
	})

	t.Run("rerun_of_same_document_is_skipped", func(t *testing.T) {
		t.Parallel()
		s := memory.New()
		oracle := &scriptedOracle{extractions: map[string]*ai.Extraction{"Mold": moldExtraction}}
		p := newTestPipeline(s, oracle)
		ctx := context.Background()

		firstID, _, _, err := p.IngestDocument(ctx, moldDoc)
		if err != nil {
			t.Fatalf("first ingest: %v", err)
		}
		secondID, skipped, step, err := p.IngestDocument(ctx, moldDoc)
		if err != nil {
			t.Fatalf("second ingest: %v", err)
		}
		if !skipped || step != StepSkipped {
			t.Fatalf("got (skipped=%v, step=%q), want (true, %q)", skipped, step, StepSkipped)
		}
		if secondID != firstID {
			t.Fatalf("got source id %q, want %q", secondID, firstID)
		}

		issues, err := s.SearchEntities(ctx, store.EntityQuery{Text: "Mold", Type: common.EntityIssue, Limit: 10})
		if err != nil {
			t.Fatalf("search issues: %v", err)
		}
		if len(issues) != 1 {
			t.Fatalf("got %d issue entities after rerun, want 1", len(issues))
		}
	})

	t.Run("missing_oracle_still_ingests_without_graph_updates", func(t *testing.T) {
		t.Parallel()
		s := memory.New()
		registry := NewRegistry(s)
		coordinator := NewCoordinator(s, s, &countingEmbedder{})
		nullOracle := ai.NewOracle(nil, 1)
		resolver := resolve.New(s, nullOracle, memory.NewKeyedLock())
		p := NewPipeline(registry, coordinator, resolver, nullOracle, s)
		ctx := context.Background()

		srcID, _, step, err := p.IngestDocument(ctx, moldDoc)
		if err != nil {
			t.Fatalf("ingest: step %s: %v", step, err)
		}

		lookup := &common.Chunk{ID: "lookup", Text: moldDoc.Text, Fingerprint: util.Fingerprint(moldDoc.Text), SourceID: srcID}
		_, created, err := s.GetOrCreateChunk(ctx, lookup)
		if err != nil {
			t.Fatalf("chunk lookup: %v", err)
		}
		if created {
			t.Fatal("document text was not chunked")
		}

		issues, err := s.SearchEntities(ctx, store.EntityQuery{Text: "Mold", Limit: 10})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(issues) != 0 {
			t.Fatalf("got %d entities without an oracle, want 0", len(issues))
		}
	})
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	t.Run("per_document_failures_do_not_abort_the_batch", func(t *testing.T) {
		t.Parallel()
		s := memory.New()
		oracle := &scriptedOracle{extractions: map[string]*ai.Extraction{}}
		p := newTestPipeline(s, oracle)

		stats := p.Run(context.Background(), []Document{
			{Locator: "file://good.txt", Text: "Tenants may withhold rent."},
			{Locator: "file://blank.txt", Text: "   "},
		})

		if stats.Ingested != 1 {
			t.Fatalf("got %d ingested, want 1", stats.Ingested)
		}
		if stats.Failed != 1 {
			t.Fatalf("got %d failed, want 1", stats.Failed)
		}
		if len(stats.Failures) != 1 {
			t.Fatalf("got %d failure records, want 1", len(stats.Failures))
		}
		failure := stats.Failures[0]
		if failure.Locator != "file://blank.txt" {
			t.Fatalf("got failure locator %q, want %q", failure.Locator, "file://blank.txt")
		}
		if failure.Step != StepFingerprinted {
			t.Fatalf("got failure step %q, want %q", failure.Step, StepFingerprinted)
		}
		if !errors.Is(failure.Err, ErrValidation) {
			t.Fatalf("got failure error %v, want ErrValidation", failure.Err)
		}
	})

	t.Run("duplicate_documents_count_as_skipped", func(t *testing.T) {
		t.Parallel()
		s := memory.New()
		oracle := &scriptedOracle{extractions: map[string]*ai.Extraction{}}
		p := newTestPipeline(s, oracle)
		ctx := context.Background()

		first := p.Run(ctx, []Document{{Locator: "file://a.txt", Text: "Heat season runs October through May."}})
		if first.Ingested != 1 || first.Skipped != 0 {
			t.Fatalf("first run: got (ingested=%d, skipped=%d), want (1, 0)", first.Ingested, first.Skipped)
		}

		second := p.Run(ctx, []Document{{Locator: "file://b.txt", Text: "Heat season runs October through May."}})
		if second.Ingested != 0 || second.Skipped != 1 {
			t.Fatalf("second run: got (ingested=%d, skipped=%d), want (0, 1)", second.Ingested, second.Skipped)
		}
	})
}
