// Package reason builds proof chains from the knowledge graph and verifies
// chains against it. A chain walks a legal issue to the evidence it needs:
// issue -APPLIES_TO-> law -ENABLES-> remedy -AVAILABLE_VIA-> procedure
// -REQUIRES-> evidence. The builder only reports edges that exist in the
// store; free-text reasoning from an oracle is a lower-trust input that
// must pass the verifier before being surfaced.
package reason

import (
	"context"
	"fmt"
	"strings"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/store"
)

type Builder struct {
	store store.GraphStore

	strongAt   float64
	moderateAt float64
}

type BuilderOption func(*Builder)

// WithStrengthThresholds overrides the strong/moderate bucket boundaries.
func WithStrengthThresholds(strong, moderate float64) BuilderOption {
	return func(b *Builder) {
		b.strongAt = strong
		b.moderateAt = moderate
	}
}

func NewBuilder(s store.GraphStore, opts ...BuilderOption) *Builder {
	b := &Builder{
		store:      s,
		strongAt:   util.GetEnvNumeric("CHAIN_STRONG_THRESHOLD", 0.7),
		moderateAt: util.GetEnvNumeric("CHAIN_MODERATE_THRESHOLD", 0.4),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildChains enumerates proof chains for each issue, walking edge types in
// their fixed priority order for at most len(ChainEdgeOrder) hops. Paths
// that share a (law, remedy) pair collapse to the one with richer
// provenance. When jurisdiction is set, hops into entities provably from
// another jurisdiction are not taken.
func (b *Builder) BuildChains(ctx context.Context, issueIDs []string, jurisdiction string) ([]common.ProofChain, error) {
	var chains []common.ProofChain
	for _, issueID := range issueIDs {
		issue, err := b.store.Entity(ctx, issueID)
		if err != nil {
			return nil, fmt.Errorf("load issue %s: %w", issueID, err)
		}

		var paths [][]common.ChainStep
		if err := b.walk(ctx, issue.ID, 0, jurisdiction, nil, &paths); err != nil {
			return nil, err
		}

		for _, path := range dedupeByLawRemedy(paths) {
			chain, err := b.assemble(ctx, issue.ID, path)
			if err != nil {
				return nil, err
			}
			chains = append(chains, chain)
		}
	}

	logger.Debug("Built proof chains", "issues", len(issueIDs), "chains", len(chains))
	return chains, nil
}

// walk extends the current path with edges of the hop's designated type.
// A path ends where no further edge of the next type exists; every
// non-empty prefix reaching that point is reported.
func (b *Builder) walk(ctx context.Context, from string, hop int, jurisdiction string, path []common.ChainStep, out *[][]common.ChainStep) error {
	if hop >= len(common.ChainEdgeOrder) {
		*out = append(*out, append([]common.ChainStep(nil), path...))
		return nil
	}

	edges, err := b.store.EdgesFrom(ctx, from, common.ChainEdgeOrder[hop])
	if err != nil {
		return err
	}

	extended := false
	for _, edge := range edges {
		ok, err := b.inJurisdiction(ctx, edge.To, jurisdiction)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		step := common.ChainStep{
			EdgeID:     edge.ID,
			From:       edge.From,
			To:         edge.To,
			Type:       edge.Type,
			Provenance: edge.Provenance,
		}
		if err := b.walk(ctx, edge.To, hop+1, jurisdiction, append(path, step), out); err != nil {
			return err
		}
		extended = true
	}

	if !extended && len(path) > 0 {
		*out = append(*out, append([]common.ChainStep(nil), path...))
	}
	return nil
}

func (b *Builder) assemble(ctx context.Context, issueID string, path []common.ChainStep) (common.ProofChain, error) {
	chain := common.ProofChain{
		Issue:    issueID,
		Elements: path,
	}

	// Required evidence already ingested counts as present; the rest is
	// what the user still has to supply.
	for _, step := range path {
		if step.Type != common.EdgeRequires {
			continue
		}
		ev, err := b.store.Entity(ctx, step.To)
		if err != nil {
			return common.ProofChain{}, fmt.Errorf("load evidence %s: %w", step.To, err)
		}
		if len(ev.ChunkIDs) > 0 {
			chain.EvidencePresent = append(chain.EvidencePresent, step.To)
		} else {
			chain.EvidenceNeeded = append(chain.EvidenceNeeded, step.To)
		}
	}

	// A complete chain covers every hop of the fixed sequence.
	chain.Strength = float64(len(path)) / float64(len(common.ChainEdgeOrder))
	chain.StrengthBucket = b.bucket(chain.Strength)
	return chain, nil
}

func (b *Builder) bucket(strength float64) string {
	switch {
	case strength >= b.strongAt:
		return "strong"
	case strength >= b.moderateAt:
		return "moderate"
	default:
		return "weak"
	}
}

// inJurisdiction reports whether an entity may appear in a chain for the
// given jurisdiction. Entities with no jurisdiction-bearing provenance are
// kept; only a provable mismatch excludes.
func (b *Builder) inJurisdiction(ctx context.Context, entityID, jurisdiction string) (bool, error) {
	if jurisdiction == "" {
		return true, nil
	}

	ent, err := b.store.Entity(ctx, entityID)
	if err != nil {
		return false, err
	}

	known := false
	for _, link := range ent.Provenance {
		src, err := b.store.Source(ctx, link.SourceID)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return false, err
		}
		if src.Jurisdiction == "" {
			continue
		}
		known = true
		if strings.EqualFold(src.Jurisdiction, jurisdiction) {
			return true, nil
		}
	}
	return !known, nil
}

// dedupeByLawRemedy collapses paths with the same (law, remedy) pair,
// keeping the one carrying more provenance.
func dedupeByLawRemedy(paths [][]common.ChainStep) [][]common.ChainStep {
	best := make(map[string]int)
	var keys []string
	kept := make(map[string][]common.ChainStep)

	for _, path := range paths {
		key := lawRemedyKey(path)
		weight := provenanceCount(path)
		if prev, ok := best[key]; !ok {
			best[key] = weight
			kept[key] = path
			keys = append(keys, key)
		} else if weight > prev {
			best[key] = weight
			kept[key] = path
		}
	}

	out := make([][]common.ChainStep, 0, len(keys))
	for _, key := range keys {
		out = append(out, kept[key])
	}
	return out
}

func lawRemedyKey(path []common.ChainStep) string {
	var law, remedy string
	for _, step := range path {
		switch step.Type {
		case common.EdgeAppliesTo:
			law = step.To
		case common.EdgeEnables:
			remedy = step.To
		}
	}
	if law == "" && remedy == "" {
		// No law or remedy on the path: keep it distinct by its full shape.
		var b strings.Builder
		for _, step := range path {
			b.WriteString(step.To)
			b.WriteString("|")
		}
		return b.String()
	}
	return law + "|" + remedy
}

func provenanceCount(path []common.ChainStep) int {
	n := 0
	for _, step := range path {
		n += len(step.Provenance)
	}
	return n
}
