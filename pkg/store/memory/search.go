package memory

import (
	"strings"

	"github.com/civicworks/lexgraph/backend/internal/util"
)

const exactPhraseBonus = 2.0

// lexicalScore ranks an entity's name and description against query text:
// per-term frequency weighted toward the name, normalized by field length,
// with a flat bonus when the whole query appears as a phrase.
func lexicalScore(query, name, description string) float64 {
	terms := strings.Fields(strings.ToLower(util.Canonicalize(query)))
	if len(terms) == 0 {
		return 0
	}

	nameTokens := strings.Fields(strings.ToLower(util.Canonicalize(name)))
	descTokens := strings.Fields(strings.ToLower(util.Canonicalize(description)))

	score := 0.0
	for _, term := range terms {
		score += 2.0 * fieldFrequency(term, nameTokens)
		score += fieldFrequency(term, descTokens)
	}

	phrase := strings.ToLower(util.Canonicalize(query))
	if phrase != "" {
		if strings.Contains(strings.ToLower(util.Canonicalize(name)), phrase) ||
			strings.Contains(strings.ToLower(util.Canonicalize(description)), phrase) {
			score += exactPhraseBonus
		}
	}
	return score
}

// fieldFrequency is term frequency with length normalization, so long
// descriptions do not dominate short names.
func fieldFrequency(term string, tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	count := 0
	for _, tok := range tokens {
		if tok == term || strings.HasPrefix(tok, term) {
			count++
		}
	}
	return float64(count) / float64(len(tokens))
}
