package util

import "testing"

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain_text", in: "warranty of habitability", want: "warranty of habitability"},
		{name: "collapses_inner_whitespace", in: "warranty   of \t habitability", want: "warranty of habitability"},
		{name: "trims_ends", in: "  heat outage \n", want: "heat outage"},
		{name: "folds_newlines", in: "line one\nline two", want: "line one line two"},
		{name: "empty", in: "", want: ""},
		{name: "whitespace_only", in: " \t\n ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Canonicalize(tt.in); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	t.Run("identical_text_same_fingerprint", func(t *testing.T) {
		t.Parallel()
		a := Fingerprint("Mold in the bathroom since January.")
		b := Fingerprint("Mold in the bathroom since January.")
		if a != b {
			t.Fatalf("got %q and %q, want equal fingerprints", a, b)
		}
	})

	t.Run("whitespace_variants_same_fingerprint", func(t *testing.T) {
		t.Parallel()
		a := Fingerprint("Mold in the bathroom since January.")
		b := Fingerprint("  Mold   in the\nbathroom since January. ")
		if a != b {
			t.Fatalf("got %q and %q, want equal fingerprints", a, b)
		}
	})

	t.Run("different_text_different_fingerprint", func(t *testing.T) {
		t.Parallel()
		a := Fingerprint("Mold in the bathroom.")
		b := Fingerprint("Mold in the kitchen.")
		if a == b {
			t.Fatalf("got identical fingerprint %q for different text", a)
		}
	})

	t.Run("hex_sha256_length", func(t *testing.T) {
		t.Parallel()
		if got := len(Fingerprint("x")); got != 64 {
			t.Fatalf("got length %d, want 64", got)
		}
	})
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "uppercases", in: "warranty of habitability", want: "WARRANTY OF HABITABILITY"},
		{name: "folds_whitespace", in: " Warranty  of\tHabitability ", want: "WARRANTY OF HABITABILITY"},
		{name: "case_variants_collide", in: "HEAT OUTAGE", want: NormalizeName("heat outage")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeName(tt.in); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
