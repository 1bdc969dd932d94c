package reason

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/store"
)

// Verifier checks proof chains against the graph and source text. It treats
// every chain the same whether the builder or an external oracle produced
// it: each asserted relation must exist as an edge, and each quote must
// appear in its source's canonical text.
type Verifier struct {
	store store.GraphStore
}

func NewVerifier(s store.GraphStore) *Verifier {
	return &Verifier{store: s}
}

// Verify accumulates every violation in the chain rather than stopping at
// the first, so callers can repair or flag a chain in one pass. The chain
// verifies only when no violation is found.
func (v *Verifier) Verify(ctx context.Context, chain common.ProofChain, sourceTexts map[string]string) (*common.VerificationResult, error) {
	var violations []string
	var failed []int

	for i, step := range chain.Elements {
		before := len(violations)

		_, err := v.store.EdgeBetween(ctx, step.From, step.To, step.Type)
		if errors.Is(err, store.ErrNotFound) {
			violations = append(violations, fmt.Sprintf(
				"missing edge: %s -%s-> %s", step.From, step.Type, step.To))
		} else if err != nil {
			return nil, fmt.Errorf("check edge %s -%s-> %s: %w", step.From, step.Type, step.To, err)
		}

		for _, link := range step.Provenance {
			if link.Quote == "" {
				continue
			}
			text, ok := sourceTexts[link.SourceID]
			if !ok {
				violations = append(violations, fmt.Sprintf(
					"no source text provided for quote in source %s", link.SourceID))
				continue
			}
			if !quoteInText(link.Quote, text) {
				violations = append(violations, fmt.Sprintf(
					"quote not found in source %s: %q", link.SourceID, link.Quote))
			}
		}

		if len(violations) > before {
			failed = append(failed, i)
		}
	}

	return &common.VerificationResult{
		Verified:       len(violations) == 0,
		Violations:     violations,
		FailedElements: failed,
	}, nil
}

// Rescore recomputes a chain's strength from its verification outcome:
// satisfied elements over total elements. An element with several
// violations still counts as one failed element. The original chain is
// not mutated.
func (v *Verifier) Rescore(chain common.ProofChain, result *common.VerificationResult, b *Builder) common.ProofChain {
	total := len(chain.Elements)
	if total == 0 {
		chain.Strength = 0
		chain.StrengthBucket = b.bucket(0)
		return chain
	}

	satisfied := total - len(result.FailedElements)
	if satisfied < 0 {
		satisfied = 0
	}
	chain.Strength = float64(satisfied) / float64(total)
	chain.StrengthBucket = b.bucket(chain.Strength)
	return chain
}

// quoteInText matches case-insensitively over whitespace-folded text, the
// same canonical form fingerprints are computed over, so line wrapping in
// the stored source cannot defeat an honest quote.
func quoteInText(quote, text string) bool {
	q := strings.ToLower(util.Canonicalize(quote))
	t := strings.ToLower(util.Canonicalize(text))
	if q == "" {
		return true
	}
	return strings.Contains(t, q)
}
