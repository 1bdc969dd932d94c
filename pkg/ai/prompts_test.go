package ai

import (
	"fmt"
	"strings"
	"testing"

	"github.com/civicworks/lexgraph/backend/pkg/common"
)

// The model only gets the relation direction right when the prompt spells
// it out, so every edge type must carry an explicit from/to gloss.
func TestExtractPromptGlossesEveryRelationDirection(t *testing.T) {
	t.Parallel()

	for _, edgeType := range common.ChainEdgeOrder {
		needle := fmt.Sprintf("- %s: from", edgeType)
		if !strings.Contains(ExtractPrompt, needle) {
			t.Fatalf("no from/to gloss for %s in the extraction prompt", edgeType)
		}
	}
	if !strings.Contains(ExtractPrompt, "APPLIES_TO: from an issue to the law") {
		t.Fatal("APPLIES_TO gloss does not run from the issue to the law")
	}
}
