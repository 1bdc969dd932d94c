package reason

import (
	"context"
	"strings"
	"testing"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/store/memory"
)

func buildHeatChain(t *testing.T) (*memory.Store, common.ProofChain) {
	t.Helper()
	s := heatOutageGraph(t)
	chains, err := NewBuilder(s).BuildChains(context.Background(), []string{"issue-heat"}, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(chains) != 1 {
		t.Fatalf("got %d chains, want 1", len(chains))
	}
	return s, chains[0]
}

func TestVerifierVerify(t *testing.T) {
	t.Parallel()

	sourceTexts := map[string]string{
		"src-ny": "The tenant reported NO HEAT   since\nNovember and filed an HP action.",
	}

	t.Run("intact_chain_verifies", func(t *testing.T) {
		t.Parallel()
		s, chain := buildHeatChain(t)
		v := NewVerifier(s)

		res, err := v.Verify(context.Background(), chain, sourceTexts)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !res.Verified {
			t.Fatalf("got verified=false, violations %v", res.Violations)
		}
		if len(res.Violations) != 0 {
			t.Fatalf("got violations %v, want none", res.Violations)
		}
	})

	t.Run("deleted_edge_fails_verification_and_names_the_edge", func(t *testing.T) {
		t.Parallel()
		s, chain := buildHeatChain(t)
		ctx := context.Background()
		if err := s.DeleteEdge(ctx, "e2"); err != nil {
			t.Fatalf("delete edge: %v", err)
		}
		v := NewVerifier(s)

		res, err := v.Verify(ctx, chain, sourceTexts)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if res.Verified {
			t.Fatal("got verified=true after removing an edge the chain asserts")
		}
		if len(res.Violations) != 1 {
			t.Fatalf("got violations %v, want exactly one", res.Violations)
		}
		violation := res.Violations[0]
		for _, part := range []string{"missing edge", "law-warranty", "ENABLES", "remedy-abatement"} {
			if !strings.Contains(violation, part) {
				t.Fatalf("violation %q does not mention %q", violation, part)
			}
		}
	})

	t.Run("quote_matches_case_insensitively_across_whitespace", func(t *testing.T) {
		t.Parallel()
		s, chain := buildHeatChain(t)
		v := NewVerifier(s)

		// The asserted quote is lower case; the source text carries it in
		// capitals with a line wrap.
		res, err := v.Verify(context.Background(), chain, map[string]string{
			"src-ny": "NO   HEAT\nSINCE NOVEMBER",
		})
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !res.Verified {
			t.Fatalf("got verified=false, violations %v", res.Violations)
		}
	})

	t.Run("violations_accumulate", func(t *testing.T) {
		t.Parallel()
		s, chain := buildHeatChain(t)
		ctx := context.Background()
		if err := s.DeleteEdge(ctx, "e2"); err != nil {
			t.Fatalf("delete edge: %v", err)
		}
		v := NewVerifier(s)

		// Edge gone and the quote absent from the provided text.
		res, err := v.Verify(ctx, chain, map[string]string{"src-ny": "unrelated text"})
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if res.Verified {
			t.Fatal("got verified=true, want two distinct violations")
		}
		if len(res.Violations) != 2 {
			t.Fatalf("got %d violations %v, want 2", len(res.Violations), res.Violations)
		}
		if len(res.FailedElements) != 2 || res.FailedElements[0] != 0 || res.FailedElements[1] != 1 {
			t.Fatalf("got failed elements %v, want [0 1]", res.FailedElements)
		}
	})

	t.Run("several_violations_on_one_element_fail_it_once", func(t *testing.T) {
		t.Parallel()
		s, chain := buildHeatChain(t)
		ctx := context.Background()
		if err := s.DeleteEdge(ctx, "e2"); err != nil {
			t.Fatalf("delete edge: %v", err)
		}
		// Pile two unverifiable quotes onto the element that also lost
		// its edge.
		chain.Elements[1].Provenance = []common.ProvenanceLink{
			{EntityID: "law-warranty", SourceID: "src-gone", Quote: "tenants may withhold rent"},
			{EntityID: "law-warranty", SourceID: "src-gone", Quote: "rent abatement is available"},
		}
		v := NewVerifier(s)

		res, err := v.Verify(ctx, chain, sourceTexts)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if len(res.Violations) != 3 {
			t.Fatalf("got %d violations %v, want 3", len(res.Violations), res.Violations)
		}
		if len(res.FailedElements) != 1 || res.FailedElements[0] != 1 {
			t.Fatalf("got failed elements %v, want [1]", res.FailedElements)
		}

		rescored := v.Rescore(chain, res, NewBuilder(s))
		if rescored.Strength != 0.75 {
			t.Fatalf("got strength %v, want 0.75", rescored.Strength)
		}
	})

	t.Run("missing_source_text_is_a_violation", func(t *testing.T) {
		t.Parallel()
		s, chain := buildHeatChain(t)
		v := NewVerifier(s)

		res, err := v.Verify(context.Background(), chain, nil)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if res.Verified {
			t.Fatal("got verified=true with no source text for the quote")
		}
		if len(res.Violations) != 1 || !strings.Contains(res.Violations[0], "src-ny") {
			t.Fatalf("got violations %v, want one naming src-ny", res.Violations)
		}
	})
}

func TestVerifierRescore(t *testing.T) {
	t.Parallel()

	s, chain := buildHeatChain(t)
	v := NewVerifier(s)
	b := NewBuilder(s)

	t.Run("violations_lower_strength", func(t *testing.T) {
		t.Parallel()
		res := &common.VerificationResult{
			Violations:     []string{"missing edge: x -ENABLES-> y"},
			FailedElements: []int{1},
		}

		rescored := v.Rescore(chain, res, b)
		if rescored.Strength != 0.75 {
			t.Fatalf("got strength %v, want 0.75", rescored.Strength)
		}
		if rescored.StrengthBucket != "strong" {
			t.Fatalf("got bucket %q, want %q", rescored.StrengthBucket, "strong")
		}
		if chain.Strength != 1.0 {
			t.Fatalf("original chain mutated: strength %v", chain.Strength)
		}
	})

	t.Run("clean_verification_keeps_full_strength", func(t *testing.T) {
		t.Parallel()
		rescored := v.Rescore(chain, &common.VerificationResult{Verified: true}, b)
		if rescored.Strength != 1.0 {
			t.Fatalf("got strength %v, want 1.0", rescored.Strength)
		}
	})

	t.Run("all_violated_bottoms_out_at_zero", func(t *testing.T) {
		t.Parallel()
		res := &common.VerificationResult{
			Violations:     []string{"a", "b", "c", "d"},
			FailedElements: []int{0, 1, 2, 3},
		}
		rescored := v.Rescore(chain, res, b)
		if rescored.Strength != 0 {
			t.Fatalf("got strength %v, want 0", rescored.Strength)
		}
		if rescored.StrengthBucket != "weak" {
			t.Fatalf("got bucket %q, want %q", rescored.StrengthBucket, "weak")
		}
	})
}
