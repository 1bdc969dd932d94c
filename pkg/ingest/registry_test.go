package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/civicworks/lexgraph/backend/pkg/store/memory"
)

func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	t.Run("first_registration_creates_source", func(t *testing.T) {
		t.Parallel()
		reg := NewRegistry(memory.New())

		src, skipped, err := reg.Register(context.Background(), "file://a.txt",
			"Mold in the bathroom since January.", SourceMeta{Jurisdiction: "NY"})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if skipped {
			t.Fatal("got skipped=true for new content, want false")
		}
		if src.ID == "" {
			t.Fatal("got empty source id")
		}
		if src.Jurisdiction != "NY" {
			t.Fatalf("got jurisdiction %q, want %q", src.Jurisdiction, "NY")
		}
		if src.Kind != "URL" {
			t.Fatalf("got kind %q, want default %q", src.Kind, "URL")
		}
	})

	t.Run("same_content_skipped_on_second_registration", func(t *testing.T) {
		t.Parallel()
		reg := NewRegistry(memory.New())
		ctx := context.Background()

		first, _, err := reg.Register(ctx, "file://a.txt", "Mold in the bathroom since January.", SourceMeta{})
		if err != nil {
			t.Fatalf("first register: %v", err)
		}
		second, skipped, err := reg.Register(ctx, "file://a.txt", "Mold in the bathroom since January.", SourceMeta{})
		if err != nil {
			t.Fatalf("second register: %v", err)
		}
		if !skipped {
			t.Fatal("got skipped=false for duplicate content, want true")
		}
		if second.ID != first.ID {
			t.Fatalf("got source id %q, want %q", second.ID, first.ID)
		}
	})

	t.Run("whitespace_variant_is_the_same_source", func(t *testing.T) {
		t.Parallel()
		reg := NewRegistry(memory.New())
		ctx := context.Background()

		first, _, err := reg.Register(ctx, "file://a.txt", "Mold in the bathroom since January.", SourceMeta{})
		if err != nil {
			t.Fatalf("first register: %v", err)
		}
		second, skipped, err := reg.Register(ctx, "file://a.txt", "  Mold in the\nbathroom   since January.  ", SourceMeta{})
		if err != nil {
			t.Fatalf("second register: %v", err)
		}
		if !skipped || second.ID != first.ID {
			t.Fatalf("got (id=%q, skipped=%v), want (id=%q, skipped=true)", second.ID, skipped, first.ID)
		}
	})

	t.Run("new_locator_for_known_content_merges_locators", func(t *testing.T) {
		t.Parallel()
		s := memory.New()
		reg := NewRegistry(s)
		ctx := context.Background()

		first, _, err := reg.Register(ctx, "https://example.org/guide", "Tenants may withhold rent.", SourceMeta{})
		if err != nil {
			t.Fatalf("first register: %v", err)
		}
		_, skipped, err := reg.Register(ctx, "https://mirror.example.org/guide", "Tenants may withhold rent.", SourceMeta{})
		if err != nil {
			t.Fatalf("second register: %v", err)
		}
		if !skipped {
			t.Fatal("got skipped=false, want true")
		}

		stored, err := s.Source(ctx, first.ID)
		if err != nil {
			t.Fatalf("load source: %v", err)
		}
		if stored.Locator != "https://example.org/guide" {
			t.Fatalf("got locator %q, want original %q", stored.Locator, "https://example.org/guide")
		}
		if len(stored.MergedLocators) != 1 || stored.MergedLocators[0] != "https://mirror.example.org/guide" {
			t.Fatalf("got merged locators %v, want [https://mirror.example.org/guide]", stored.MergedLocators)
		}
	})

	t.Run("empty_locator_is_a_validation_error", func(t *testing.T) {
		t.Parallel()
		reg := NewRegistry(memory.New())

		_, _, err := reg.Register(context.Background(), "", "some text", SourceMeta{})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("got %v, want ErrValidation", err)
		}
	})

	t.Run("blank_document_is_a_validation_error", func(t *testing.T) {
		t.Parallel()
		reg := NewRegistry(memory.New())

		_, _, err := reg.Register(context.Background(), "file://empty.txt", "  \n\t ", SourceMeta{})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("got %v, want ErrValidation", err)
		}
	})
}
