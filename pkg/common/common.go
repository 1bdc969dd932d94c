package common

import "time"

// Source is a canonical ingested document, keyed by its content fingerprint.
// At most one Source exists per fingerprint; additional locators that carry
// the same content are recorded in MergedLocators instead of creating a new
// Source. Sources are never deleted.
type Source struct {
	ID             string       `json:"id"`
	Locator        string       `json:"locator"`
	Fingerprint    string       `json:"content_fingerprint"`
	Kind           string       `json:"kind"`
	Title          string       `json:"title,omitempty"`
	Jurisdiction   string       `json:"jurisdiction,omitempty"`
	Authority      Authority    `json:"authority,omitempty"`
	DocumentType   DocumentType `json:"document_type,omitempty"`
	Organization   string       `json:"organization,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	MergedLocators []string     `json:"merged_locators,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Authority ranks how binding a source is.
type Authority string

const (
	AuthorityPrimaryLaw        Authority = "PRIMARY_LAW"
	AuthorityBindingPrecedent  Authority = "BINDING_PRECEDENT"
	AuthorityAdminGuidance     Authority = "ADMINISTRATIVE_GUIDANCE"
	AuthorityPracticalSelfHelp Authority = "PRACTICAL_SELF_HELP"
	AuthorityInformationalOnly Authority = "INFORMATIONAL_ONLY"
)

// DocumentType classifies the form of a source document.
type DocumentType string

const (
	DocStatute          DocumentType = "STATUTE"
	DocRegulation       DocumentType = "REGULATION"
	DocCaseLaw          DocumentType = "CASE_LAW"
	DocSelfHelpGuide    DocumentType = "SELF_HELP_GUIDE"
	DocLegalMemo        DocumentType = "LEGAL_MEMO"
	DocAdvocacyDocument DocumentType = "ADVOCACY_DOCUMENT"
	DocUnknown          DocumentType = "UNKNOWN"
)

// EntityType tags the role an entity plays in a proof chain.
type EntityType string

const (
	EntityIssue     EntityType = "ISSUE"
	EntityLaw       EntityType = "LAW"
	EntityRemedy    EntityType = "REMEDY"
	EntityProcedure EntityType = "PROCEDURE"
	EntityEvidence  EntityType = "EVIDENCE"
)

// Entity is a node in the knowledge graph: a legal issue, a law, a remedy,
// a procedure, or a category of evidence. Within a type the resolver keeps
// one entity per real-world concept; losers of a merge become tombstones
// that redirect to the surviving entity.
type Entity struct {
	ID          string            `json:"id"`
	Type        EntityType        `json:"type"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	ChunkIDs    []string          `json:"chunk_ids,omitempty"`
	Provenance  []ProvenanceLink  `json:"provenance,omitempty"`
	NeedsReview bool              `json:"needs_review,omitempty"`

	// MergedInto is non-empty on tombstones and names the surviving entity.
	MergedInto string    `json:"merged_into,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chunk is a deduplicated fragment of source text. Identical text arriving
// from different documents reuses one chunk; EntityIDs is the union of every
// entity extracted from any occurrence.
type Chunk struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Fingerprint string    `json:"content_fingerprint"`
	SourceID    string    `json:"source_id"`
	Index       int       `json:"chunk_index"`
	EntityIDs   []string  `json:"entity_ids,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EdgeType is the relationship vocabulary. Chain building traverses these
// in a fixed priority order, so ChainEdgeOrder matters.
type EdgeType string

const (
	EdgeAppliesTo    EdgeType = "APPLIES_TO"
	EdgeEnables      EdgeType = "ENABLES"
	EdgeAvailableVia EdgeType = "AVAILABLE_VIA"
	EdgeRequires     EdgeType = "REQUIRES"
)

// ChainEdgeOrder is the traversal sequence for proof chain construction:
// issue -APPLIES_TO-> law -ENABLES-> remedy -AVAILABLE_VIA-> procedure
// -REQUIRES-> evidence.
var ChainEdgeOrder = []EdgeType{EdgeAppliesTo, EdgeEnables, EdgeAvailableVia, EdgeRequires}

// Edge is a directed, typed relationship between two entities. Edges are
// never implicitly symmetric.
type Edge struct {
	ID         string           `json:"id"`
	From       string           `json:"from_entity"`
	To         string           `json:"to_entity"`
	Type       EdgeType         `json:"type"`
	Provenance []ProvenanceLink `json:"provenance,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ProvenanceLink ties a claim about an entity back to a quoted span of a
// source's canonical text. The quote is checked by the verification layer,
// not at write time.
type ProvenanceLink struct {
	EntityID string `json:"entity_id"`
	SourceID string `json:"source_id"`
	Quote    string `json:"quote"`
}

// ChainStep is one link in a proof chain. EdgeID is empty for relations
// asserted by the reasoning oracle rather than read from the graph; such
// steps stay unverified until the verification layer confirms them.
type ChainStep struct {
	EdgeID     string           `json:"edge_id,omitempty"`
	From       string           `json:"from_entity"`
	To         string           `json:"to_entity"`
	Type       EdgeType         `json:"type"`
	Provenance []ProvenanceLink `json:"provenance,omitempty"`
}

// ProofChain connects a legal issue to evidence via law, remedy, and
// procedure entities. Chains are transient: built per query, never stored.
type ProofChain struct {
	Issue           string      `json:"issue"`
	Elements        []ChainStep `json:"elements"`
	EvidencePresent []string    `json:"evidence_present,omitempty"`
	EvidenceNeeded  []string    `json:"evidence_needed,omitempty"`
	Strength        float64     `json:"strength_score"`
	StrengthBucket  string      `json:"strength_bucket,omitempty"`
	Explanation     string      `json:"explanation,omitempty"`
}

// VerificationResult reports whether every asserted relation and quote in a
// chain is backed by the graph and source text. Violations accumulate; the
// chain verifies only when the list is empty. FailedElements holds the
// indices of chain elements with at least one violation, so rescoring can
// count satisfied elements even when one element violates several ways.
type VerificationResult struct {
	Verified       bool     `json:"verified"`
	Violations     []string `json:"violations,omitempty"`
	FailedElements []int    `json:"failed_elements,omitempty"`
}

// RankedItemKind distinguishes fused retrieval results.
type RankedItemKind string

const (
	RankedEntity RankedItemKind = "entity"
	RankedChunk  RankedItemKind = "chunk"
)

// RankedItem is one fused retrieval result. Exactly one of Entity or Chunk
// is set, matching Kind.
type RankedItem struct {
	Kind      RankedItemKind `json:"kind"`
	ID        string         `json:"id"`
	Score     float64        `json:"score"`
	Methods   []string       `json:"methods,omitempty"`
	Entity    *Entity        `json:"entity,omitempty"`
	Chunk     *Chunk         `json:"chunk,omitempty"`
	CreatedAt time.Time      `json:"-"`
}

// Candidate is an entity proposal produced by the extraction oracle before
// resolution against the stored graph.
type Candidate struct {
	Type        EntityType        `json:"type"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Quote       string            `json:"quote,omitempty"`
}
