package manifest

import (
	"errors"
	"strings"
	"testing"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/ingest"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("valid_lines_parse", func(t *testing.T) {
		t.Parallel()
		input := strings.Join([]string{
			`{"locator": "https://example.org/statute", "kind": "URL", "title": "Housing Maintenance Code", "jurisdiction": "NY", "authority": "PRIMARY_LAW", "document_type": "STATUTE"}`,
			`{"locator": "file://guide.txt"}`,
		}, "\n")

		entries, errs := Parse(strings.NewReader(input))
		if len(errs) != 0 {
			t.Fatalf("got parse errors %v, want none", errs)
		}
		if len(entries) != 2 {
			t.Fatalf("got %d entries, want 2", len(entries))
		}
		if entries[0].Title != "Housing Maintenance Code" {
			t.Fatalf("got title %q, want %q", entries[0].Title, "Housing Maintenance Code")
		}
		if entries[1].Kind != "URL" {
			t.Fatalf("got kind %q, want default %q", entries[1].Kind, "URL")
		}
	})

	t.Run("blank_and_comment_lines_are_skipped", func(t *testing.T) {
		t.Parallel()
		input := "\n# statutes first\n" + `{"locator": "file://a.txt"}` + "\n\n"

		entries, errs := Parse(strings.NewReader(input))
		if len(errs) != 0 {
			t.Fatalf("got parse errors %v, want none", errs)
		}
		if len(entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(entries))
		}
	})

	t.Run("bad_lines_are_reported_without_aborting", func(t *testing.T) {
		t.Parallel()
		input := strings.Join([]string{
			`not json at all`,
			`{"kind": "URL"}`,
			`{"locator": "file://ok.txt"}`,
			`{"locator": "file://bad-enum.txt", "authority": "SUPREME_TRUTH"}`,
		}, "\n")

		entries, errs := Parse(strings.NewReader(input))
		if len(entries) != 1 || entries[0].Locator != "file://ok.txt" {
			t.Fatalf("got entries %v, want only the valid line", entries)
		}
		if len(errs) != 3 {
			t.Fatalf("got %d errors %v, want 3", len(errs), errs)
		}
		wantLines := []int{1, 2, 4}
		for i, err := range errs {
			if err.Line != wantLines[i] {
				t.Fatalf("error %d: got line %d, want %d", i, err.Line, wantLines[i])
			}
			if !errors.Is(err.Err, ingest.ErrValidation) {
				t.Fatalf("error %d: got %v, want ErrValidation", i, err.Err)
			}
		}
	})

	t.Run("meta_carries_all_fields", func(t *testing.T) {
		t.Parallel()
		entry := Entry{
			Locator:      "file://a.txt",
			Kind:         "FILE",
			Title:        "Guide",
			Jurisdiction: "NY",
			Authority:    "PRACTICAL_SELF_HELP",
			DocumentType: "SELF_HELP_GUIDE",
			Organization: "Tenant Union",
			Tags:         []string{"housing"},
			Notes:        "scanned copy",
		}

		meta := entry.Meta()
		if meta.Authority != common.AuthorityPracticalSelfHelp {
			t.Fatalf("got authority %q, want %q", meta.Authority, common.AuthorityPracticalSelfHelp)
		}
		if meta.DocumentType != common.DocSelfHelpGuide {
			t.Fatalf("got document type %q, want %q", meta.DocumentType, common.DocSelfHelpGuide)
		}
		if meta.Jurisdiction != "NY" || meta.Organization != "Tenant Union" {
			t.Fatalf("got meta %+v, want all fields carried", meta)
		}
	})
}
