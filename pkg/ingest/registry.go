// Package ingest turns raw documents into deduplicated sources, chunks, and
// graph updates. The source registry's fingerprint check is the idempotence
// gate: downstream side effects happen once per distinct content, no matter
// how many times or from how many locators the same text arrives.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// SourceMeta is caller-supplied document metadata, typically parsed from a
// manifest entry.
type SourceMeta struct {
	Kind         string
	Title        string
	Jurisdiction string
	Authority    common.Authority
	DocumentType common.DocumentType
	Organization string
	Tags         []string
	Notes        string
}

// Registry tracks canonical documents by content fingerprint.
type Registry struct {
	store store.GraphStore
}

func NewRegistry(s store.GraphStore) *Registry {
	return &Registry{store: s}
}

// Register records a document under its content fingerprint. If the same
// content was registered before, the locator is appended to the existing
// source's merged locators and skipped=true is returned; nothing downstream
// should run for a skipped document.
func (r *Registry) Register(ctx context.Context, locator, rawText string, meta SourceMeta) (*common.Source, bool, error) {
	if locator == "" {
		return nil, false, fmt.Errorf("%w: locator is empty", ErrValidation)
	}

	fingerprint := util.Fingerprint(rawText)
	if fingerprint == util.Fingerprint("") {
		return nil, false, fmt.Errorf("%w: document %q has no content", ErrValidation, locator)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, false, err
	}

	kind := meta.Kind
	if kind == "" {
		kind = "URL"
	}

	src := &common.Source{
		ID:           id,
		Locator:      locator,
		Fingerprint:  fingerprint,
		Kind:         kind,
		Title:        meta.Title,
		Jurisdiction: meta.Jurisdiction,
		Authority:    meta.Authority,
		DocumentType: meta.DocumentType,
		Organization: meta.Organization,
		Tags:         meta.Tags,
		Notes:        meta.Notes,
		CreatedAt:    time.Now().UTC(),
	}

	stored, created, err := r.store.GetOrCreateSource(ctx, src)
	if err != nil {
		return nil, false, fmt.Errorf("register source %q: %w", locator, err)
	}
	if created {
		logger.Debug("Registered source", "id", stored.ID, "locator", locator)
		return stored, false, nil
	}

	if stored.Locator != locator {
		if err := r.store.AppendSourceLocator(ctx, stored.ID, locator); err != nil {
			return nil, false, fmt.Errorf("append locator to source %s: %w", stored.ID, err)
		}
	}
	logger.Debug("Source content already known, skipping", "id", stored.ID, "locator", locator)
	return stored, true, nil
}
