package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/common"
)

// ErrUnavailable signals that no reasoning backend is configured. Callers
// that can degrade (the resolver's exact-match fallback) check for it.
var ErrUnavailable = errors.New("reasoning oracle unavailable")

type extractEntity struct {
	Name        string `json:"name" jsonschema_description:"Name of the legal concept"`
	Type        string `json:"type" jsonschema_description:"One of the provided entity types"`
	Description string `json:"description" jsonschema_description:"One or two sentences describing the concept as the text presents it"`
	Quote       string `json:"quote" jsonschema_description:"Short verbatim quote from the text supporting this concept"`
}

type extractRelation struct {
	From string `json:"from" jsonschema_description:"Name of the source concept, as identified above"`
	To   string `json:"to" jsonschema_description:"Name of the target concept, as identified above"`
	Type string `json:"type" jsonschema_description:"One of the provided relationship types"`
}

type extractResponse struct {
	Entities  []extractEntity   `json:"entities" jsonschema_description:"Legal concepts identified in the text"`
	Relations []extractRelation `json:"relations" jsonschema_description:"Directed relationships between identified concepts"`
}

type confirmResponse struct {
	Same   bool   `json:"same" jsonschema_description:"True if both entries denote the same real-world legal concept"`
	Reason string `json:"reason" jsonschema_description:"One sentence justifying the decision"`
}

// CandidateRelation is an extracted relationship between two candidates,
// referenced by name since candidates have no ids yet.
type CandidateRelation struct {
	FromName string
	ToName   string
	Type     common.EdgeType
}

// Extraction is the oracle's output for one chunk of text.
type Extraction struct {
	Candidates []common.Candidate
	Relations  []CandidateRelation
}

var entityTypes = []common.EntityType{
	common.EntityIssue, common.EntityLaw, common.EntityRemedy,
	common.EntityProcedure, common.EntityEvidence,
}

// Oracle exposes the external reasoning capabilities the core consumes.
// Its output is untrusted: chains it produces must pass verification, and
// extraction results carry quotes so they stay falsifiable.
type Oracle struct {
	client     Client
	maxRetries int
}

// NewOracle wraps a model client. client may be nil, in which case every
// call returns ErrUnavailable.
func NewOracle(client Client, maxRetries int) *Oracle {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Oracle{client: client, maxRetries: maxRetries}
}

// ExtractEntities pulls candidate legal concepts and relations from text.
// Entities with unknown types and relations that reference unknown names or
// types are dropped rather than guessed at.
func (o *Oracle) ExtractEntities(ctx context.Context, text string) (*Extraction, error) {
	if o.client == nil {
		return nil, ErrUnavailable
	}

	types := make([]string, len(entityTypes))
	for i, t := range entityTypes {
		types[i] = string(t)
	}
	edges := make([]string, len(common.ChainEdgeOrder))
	for i, e := range common.ChainEdgeOrder {
		edges[i] = string(e)
	}
	systemPrompt := fmt.Sprintf(ExtractPrompt, strings.Join(types, ", "), strings.Join(edges, ", "))

	var res extractResponse
	err := util.RetryErrWithContext(ctx, o.maxRetries, func(ctx context.Context) error {
		return o.client.GenerateCompletionWithFormat(
			ctx,
			"extract_legal_concepts",
			"Extract legal concepts and their relationships from a document passage.",
			text,
			&res,
			WithSystemPrompts(systemPrompt),
			WithTemperature(0.1),
		)
	})
	if err != nil {
		return nil, err
	}

	out := &Extraction{}
	known := make(map[string]bool)
	for _, e := range res.Entities {
		typ, ok := parseEntityType(e.Type)
		if !ok || strings.TrimSpace(e.Name) == "" {
			continue
		}
		out.Candidates = append(out.Candidates, common.Candidate{
			Type:        typ,
			Name:        util.Canonicalize(e.Name),
			Description: strings.TrimSpace(e.Description),
			Quote:       strings.TrimSpace(e.Quote),
		})
		known[util.NormalizeName(e.Name)] = true
	}
	for _, r := range res.Relations {
		typ, ok := parseEdgeType(r.Type)
		if !ok {
			continue
		}
		from := util.Canonicalize(r.From)
		to := util.Canonicalize(r.To)
		if !known[util.NormalizeName(from)] || !known[util.NormalizeName(to)] {
			continue
		}
		out.Relations = append(out.Relations, CandidateRelation{
			FromName: from,
			ToName:   to,
			Type:     typ,
		})
	}
	return out, nil
}

// ConfirmSameConcept asks whether two same-typed candidates denote one
// real-world legal concept.
func (o *Oracle) ConfirmSameConcept(ctx context.Context, a, b common.Candidate) (bool, error) {
	if o.client == nil {
		return false, ErrUnavailable
	}

	prompt := fmt.Sprintf(ConfirmPrompt, a.Type, a.Name, a.Description, b.Name, b.Description)

	var res confirmResponse
	err := util.RetryErrWithContext(ctx, o.maxRetries, func(ctx context.Context) error {
		return o.client.GenerateCompletionWithFormat(
			ctx,
			"confirm_same_concept",
			"Decide whether two entries denote the same legal concept.",
			prompt,
			&res,
			WithTemperature(0.0),
		)
	})
	if err != nil {
		return false, err
	}
	return res.Same, nil
}

// ExplainChain renders a verified proof chain as plain-language prose.
// nameOf maps entity ids to display names.
func (o *Oracle) ExplainChain(ctx context.Context, chain common.ProofChain, nameOf func(string) string) (string, error) {
	if o.client == nil {
		return "", ErrUnavailable
	}

	var b strings.Builder
	for _, step := range chain.Elements {
		fmt.Fprintf(&b, "%s -%s-> %s\n", nameOf(step.From), step.Type, nameOf(step.To))
	}

	return util.RetryWithContext(ctx, o.maxRetries, func(ctx context.Context) (string, error) {
		return o.client.GenerateCompletion(ctx, fmt.Sprintf(ExplainPrompt, b.String()))
	})
}

func parseEntityType(s string) (common.EntityType, bool) {
	t := common.EntityType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range entityTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

func parseEdgeType(s string) (common.EdgeType, bool) {
	t := common.EdgeType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range common.ChainEdgeOrder {
		if t == known {
			return t, true
		}
	}
	return "", false
}
