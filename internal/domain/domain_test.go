package domain

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLookupResolvesNamesAndAliases(t *testing.T) {
	catalog := DefaultCatalog()
	tests := map[string]string{
		"employee":  "employee",
		" HR ":      "employee",
		"employees": "employee",
		"Sales":     "sales",
		"feedback":  "support",
		"support":   "support",
	}
	for input, want := range tests {
		profile, ok := catalog.Lookup(input)
		if !ok {
			t.Fatalf("Lookup(%q) not found", input)
		}
		if profile.Name != want {
			t.Fatalf("Lookup(%q) = %q, want %q", input, profile.Name, want)
		}
	}
	if _, ok := catalog.Lookup("astrology"); ok {
		t.Fatal("Lookup(astrology) should not resolve")
	}
	if _, ok := catalog.Lookup(""); ok {
		t.Fatal("Lookup(\"\") should not resolve")
	}
}

func TestExamplesExtractsNumberedLines(t *testing.T) {
	profile := &Profile{Prompt: "Intro line\n  1. \"first\"\n   SELECT 1;\n2) \"second\"\n10 apples\n0. zero\n"}
	want := []string{`1. "first"`, `2) "second"`}
	if diff := cmp.Diff(want, profile.Examples()); diff != "" {
		t.Fatalf("Examples() mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultProfilesCarryExamples(t *testing.T) {
	for _, profile := range DefaultCatalog().Profiles() {
		examples := profile.Examples()
		if len(examples) < 3 {
			t.Fatalf("profile %s examples = %v", profile.Name, examples)
		}
		for _, example := range examples {
			if strings.Contains(example, "SELECT") {
				t.Fatalf("profile %s example line carries SQL: %q", profile.Name, example)
			}
		}
		if len(profile.TableNames()) == 0 || len(profile.KeyMetrics) == 0 {
			t.Fatalf("profile %s is incomplete", profile.Name)
		}
	}
}

func TestProfilesPreservesRegistrationOrder(t *testing.T) {
	var names []string
	for _, profile := range DefaultCatalog().Profiles() {
		names = append(names, profile.Name)
	}
	if diff := cmp.Diff([]string{"employee", "sales", "support"}, names); diff != "" {
		t.Fatalf("Profiles() mismatch (-want +got):\n%s", diff)
	}
}
