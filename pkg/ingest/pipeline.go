package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/ai"
	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/resolve"
	"github.com/civicworks/lexgraph/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

// Step names the stage an ingestion item is in. Failures carry the step so
// a rerun of the batch knows where an item stopped; already persisted
// documents are skipped by the fingerprint gate, making reruns idempotent.
type Step string

const (
	StepNew           Step = "NEW"
	StepFingerprinted Step = "FINGERPRINTED"
	StepSkipped       Step = "SKIPPED"
	StepExtracting    Step = "EXTRACTING"
	StepResolving     Step = "RESOLVING"
	StepChunking      Step = "CHUNKING"
	StepEmbedding     Step = "EMBEDDING"
	StepPersisted     Step = "PERSISTED"
	StepComplete      Step = "COMPLETE"
)

// Document is one unit of ingestion work: located, fetched text plus its
// manifest metadata.
type Document struct {
	Locator string
	Text    string
	Meta    SourceMeta
}

// Failure records a document that could not be ingested and the step where
// it failed.
type Failure struct {
	Locator string
	Step    Step
	Err     error
}

// Stats summarizes one batch run. Skipped counts fingerprint duplicates;
// they are an expected outcome, not an error.
type Stats struct {
	Ingested int
	Skipped  int
	Failed   int
	Failures []Failure
}

// ExtractOracle is the entity extraction capability the pipeline consumes.
type ExtractOracle interface {
	ExtractEntities(ctx context.Context, text string) (*ai.Extraction, error)
}

// Pipeline runs the full ingestion path for documents: registration,
// extraction, resolution, chunking, embedding, and edge persistence.
type Pipeline struct {
	registry *Registry
	chunks   *Coordinator
	resolver *resolve.Resolver
	oracle   ExtractOracle
	store    store.GraphStore

	encoder       string
	maxTokens     int
	parallelDocs  int
	parallelUnits int
	maxRetries    int
	backoffBase   time.Duration
}

func NewPipeline(
	registry *Registry,
	chunks *Coordinator,
	resolver *resolve.Resolver,
	oracle ExtractOracle,
	s store.GraphStore,
) *Pipeline {
	return &Pipeline{
		registry:      registry,
		chunks:        chunks,
		resolver:      resolver,
		oracle:        oracle,
		store:         s,
		encoder:       util.GetEnvString("CHUNK_ENCODER", "cl100k_base"),
		maxTokens:     util.GetEnvInt("CHUNK_MAX_TOKENS", 600),
		parallelDocs:  util.GetEnvInt("INGEST_PARALLEL_DOCS", 4),
		parallelUnits: util.GetEnvInt("INGEST_PARALLEL_UNITS", 4),
		maxRetries:    util.GetEnvInt("INGEST_MAX_RETRIES", 3),
		backoffBase:   util.GetEnvDuration("INGEST_BACKOFF_BASE", 500*time.Millisecond),
	}
}

// Run ingests a batch. Documents are processed in parallel and isolated
// from each other: one document's failure lands in the stats, it never
// aborts the batch.
func (p *Pipeline) Run(ctx context.Context, docs []Document) *Stats {
	stats := &Stats{}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelDocs)
	for _, doc := range docs {
		d := doc
		g.Go(func() error {
			_, skipped, step, err := p.IngestDocument(gCtx, d)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				logger.Error("Document ingestion failed", "locator", d.Locator, "step", step, "err", err)
				stats.Failed++
				stats.Failures = append(stats.Failures, Failure{Locator: d.Locator, Step: step, Err: err})
			case skipped:
				stats.Skipped++
			default:
				stats.Ingested++
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("Ingestion batch finished",
		"ingested", stats.Ingested, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats
}

// IngestDocument runs the per-document state machine and returns the source
// id, whether the document was a fingerprint duplicate, and on error the
// step that failed.
func (p *Pipeline) IngestDocument(ctx context.Context, doc Document) (string, bool, Step, error) {
	src, skipped, err := p.registry.Register(ctx, doc.Locator, doc.Text, doc.Meta)
	if err != nil {
		return "", false, StepFingerprinted, err
	}
	if skipped {
		return src.ID, true, StepSkipped, nil
	}

	units, err := SplitChunks(doc.Text, p.encoder, p.maxTokens)
	if err != nil {
		return "", false, StepChunking, err
	}

	extractions, err := p.extract(ctx, units)
	if err != nil {
		return "", false, StepExtracting, err
	}

	entityIDs, relations, err := p.resolveAll(ctx, extractions, src.ID)
	if err != nil {
		return "", false, StepResolving, err
	}

	for i, unit := range units {
		ids := unitEntityIDs(extractions[i], entityIDs)
		err := util.RetryBackoffErr(ctx, p.maxRetries, p.backoffBase, 8*p.backoffBase, func(ctx context.Context) error {
			_, err := p.chunks.UpsertChunk(ctx, unit, src.ID, i, ids)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrTransient) {
				return "", false, StepEmbedding, err
			}
			return "", false, StepChunking, err
		}
	}

	if err := p.persistEdges(ctx, relations, entityIDs, src.ID); err != nil {
		return "", false, StepPersisted, err
	}

	logger.Info("Document ingested", "locator", doc.Locator, "source", src.ID,
		"chunks", len(units), "entities", len(entityIDs))
	return src.ID, false, StepComplete, nil
}

// extract runs the oracle over every unit in parallel. A missing oracle is
// tolerated: the document is still chunked and embedded, it just contributes
// no graph updates.
func (p *Pipeline) extract(ctx context.Context, units []string) ([]*ai.Extraction, error) {
	extractions := make([]*ai.Extraction, len(units))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelUnits)
	for i, unit := range units {
		i, unit := i, unit
		g.Go(func() error {
			ex, err := p.oracle.ExtractEntities(gCtx, unit)
			if errors.Is(err, ai.ErrUnavailable) {
				logger.Warn("Extraction oracle unavailable, ingesting without graph updates")
				extractions[i] = &ai.Extraction{}
				return nil
			}
			if err != nil {
				return fmt.Errorf("extract unit %d: %w", i, err)
			}
			extractions[i] = ex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return extractions, nil
}

// resolveAll resolves every distinct candidate once and returns the
// name-keyed entity id map plus the merged relation list.
func (p *Pipeline) resolveAll(ctx context.Context, extractions []*ai.Extraction, sourceID string) (map[string]string, []ai.CandidateRelation, error) {
	merged := make(map[string]common.Candidate)
	var relations []ai.CandidateRelation
	seenRel := make(map[string]bool)

	for _, ex := range extractions {
		for _, cand := range ex.Candidates {
			key := candidateKey(cand.Type, cand.Name)
			prev, ok := merged[key]
			if !ok {
				merged[key] = cand
				continue
			}
			if len(cand.Description) > len(prev.Description) {
				prev.Description = cand.Description
			}
			if prev.Quote == "" {
				prev.Quote = cand.Quote
			}
			for k, v := range cand.Attributes {
				if v == "" {
					continue
				}
				if prev.Attributes == nil {
					prev.Attributes = make(map[string]string)
				}
				prev.Attributes[k] = v
			}
			merged[key] = prev
		}
		for _, rel := range ex.Relations {
			key := util.NormalizeName(rel.FromName) + "|" + string(rel.Type) + "|" + util.NormalizeName(rel.ToName)
			if seenRel[key] {
				continue
			}
			seenRel[key] = true
			relations = append(relations, rel)
		}
	}

	ids := make(map[string]string, len(merged))
	for key, cand := range merged {
		id, err := p.resolver.Resolve(ctx, cand, sourceID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve %q: %w", cand.Name, err)
		}
		ids[key] = id
	}
	return ids, relations, nil
}

func (p *Pipeline) persistEdges(ctx context.Context, relations []ai.CandidateRelation, entityIDs map[string]string, sourceID string) error {
	for _, rel := range relations {
		from, to := lookupRelationIDs(rel, entityIDs)
		if from == "" || to == "" {
			continue
		}

		id, err := gonanoid.New()
		if err != nil {
			return err
		}
		edge := &common.Edge{
			ID:   id,
			From: from,
			To:   to,
			Type: rel.Type,
			Provenance: []common.ProvenanceLink{{
				EntityID: from,
				SourceID: sourceID,
			}},
			CreatedAt: time.Now().UTC(),
		}
		err = util.RetryBackoffErr(ctx, p.maxRetries, p.backoffBase, 8*p.backoffBase, func(ctx context.Context) error {
			return p.store.SaveEdge(ctx, edge)
		})
		if err != nil {
			return fmt.Errorf("save edge %s-%s->%s: %w", from, rel.Type, to, err)
		}
	}
	return nil
}

// lookupRelationIDs finds the resolved ids for a relation's endpoints. The
// extraction oracle names endpoints without types, so every type bucket is
// checked.
func lookupRelationIDs(rel ai.CandidateRelation, entityIDs map[string]string) (string, string) {
	var from, to string
	for _, typ := range []common.EntityType{
		common.EntityIssue, common.EntityLaw, common.EntityRemedy,
		common.EntityProcedure, common.EntityEvidence,
	} {
		if from == "" {
			from = entityIDs[candidateKey(typ, rel.FromName)]
		}
		if to == "" {
			to = entityIDs[candidateKey(typ, rel.ToName)]
		}
	}
	return from, to
}

func unitEntityIDs(ex *ai.Extraction, entityIDs map[string]string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, cand := range ex.Candidates {
		id := entityIDs[candidateKey(cand.Type, cand.Name)]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func candidateKey(typ common.EntityType, name string) string {
	return string(typ) + "|" + util.NormalizeName(name)
}
