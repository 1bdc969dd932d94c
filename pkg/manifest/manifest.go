// Package manifest reads the JSONL ingestion manifest: one JSON object per
// line naming a document locator and optional metadata.
package manifest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/ingest"

	"github.com/go-playground/validator"
)

// Entry is one manifest line. Locator is the only required field; kind
// defaults to URL.
type Entry struct {
	Locator      string   `json:"locator" validate:"required"`
	Kind         string   `json:"kind,omitempty"`
	Title        string   `json:"title,omitempty"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`
	Authority    string   `json:"authority,omitempty" validate:"omitempty,oneof=PRIMARY_LAW BINDING_PRECEDENT ADMINISTRATIVE_GUIDANCE PRACTICAL_SELF_HELP INFORMATIONAL_ONLY"`
	DocumentType string   `json:"document_type,omitempty" validate:"omitempty,oneof=STATUTE REGULATION CASE_LAW SELF_HELP_GUIDE LEGAL_MEMO ADVOCACY_DOCUMENT UNKNOWN"`
	Organization string   `json:"organization,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// Meta converts the entry into the registry's metadata form.
func (e Entry) Meta() ingest.SourceMeta {
	return ingest.SourceMeta{
		Kind:         e.Kind,
		Title:        e.Title,
		Jurisdiction: e.Jurisdiction,
		Authority:    common.Authority(e.Authority),
		DocumentType: common.DocumentType(e.DocumentType),
		Organization: e.Organization,
		Tags:         e.Tags,
		Notes:        e.Notes,
	}
}

// ParseError is a manifest line that failed to parse or validate. Bad lines
// never abort the rest of the manifest.
type ParseError struct {
	Line int
	Err  error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("manifest line %d: %v", e.Line, e.Err)
}

var validate = validator.New()

// Parse reads a JSONL manifest, returning the valid entries and one error
// per rejected line.
func Parse(r io.Reader) ([]Entry, []ParseError) {
	var entries []Entry
	var errs []ParseError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			errs = append(errs, ParseError{Line: line, Err: fmt.Errorf("%w: %v", ingest.ErrValidation, err)})
			continue
		}
		if entry.Kind == "" {
			entry.Kind = "URL"
		}
		if err := validate.Struct(entry); err != nil {
			errs = append(errs, ParseError{Line: line, Err: fmt.Errorf("%w: %v", ingest.ErrValidation, err)})
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, ParseError{Line: line + 1, Err: err})
	}

	return entries, errs
}
