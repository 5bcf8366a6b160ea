package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewCategories_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cats    []Category
		wantErr bool
	}{
		{"ok", []Category{{ID: "a"}, {ID: "b"}}, false},
		{"empty id", []Category{{Name: "x"}}, true},
		{"duplicate", []Category{{ID: "a"}, {ID: "a"}}, true},
		{"reserved other", []Category{{ID: OtherCategory}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCategories(tt.cats)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCategories() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCategories_Resolve(t *testing.T) {
	c, err := NewCategories([]Category{
		{ID: "emotional-distress", Name: "Emotional Distress"},
		{ID: "privacy-violation", Name: "Privacy Violation"},
	})
	if err != nil {
		t.Fatalf("NewCategories() error = %v", err)
	}

	tests := map[string]string{
		"emotional-distress":  "emotional-distress",
		"Emotional_Distress":  "emotional-distress",
		"emotional distress":  "emotional-distress",
		"Privacy Violation":   "privacy-violation",
		"something-else":      OtherCategory,
		"":                    OtherCategory,
	}
	for raw, want := range tests {
		if got := c.Resolve(raw); got != want {
			t.Errorf("Resolve(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestPresets(t *testing.T) {
	general := MustPreset(PresetGeneral)
	if !general.Categories.Has("emotional-distress") {
		t.Error("general preset should include emotional-distress")
	}
	if general.Principles.Len() != 4 {
		t.Errorf("principles = %d, want 4", general.Principles.Len())
	}

	mh := MustPreset(PresetMentalHealth)
	if !mh.Categories.Has("suicidal-ideation") {
		t.Error("mental-health preset should include suicidal-ideation")
	}

	if _, err := Load("nope", ""); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestLoad_FileOverridesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	content := `
categories:
  - id: grooming
    name: Grooming
    keywords: [secret, "don't tell"]
  - id: phishing
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := Load(PresetGeneral, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff([]string{"grooming", "phishing"}, set.Categories.IDs()); diff != "" {
		t.Errorf("category ids mismatch (-want +got):\n%s", diff)
	}
	cat, _ := set.Categories.Get("phishing")
	if cat.Name != "phishing" {
		t.Errorf("Name should default to id, got %q", cat.Name)
	}
	// principles section absent: preset principles kept
	if set.Principles.Len() != 4 {
		t.Errorf("principles = %d, want preset 4", set.Principles.Len())
	}
}

func TestPrinciples_Resolve(t *testing.T) {
	p, err := NewPrinciples([]Principle{{ID: "respect-autonomy", Name: "Respect for Autonomy"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, raw := range []string{"respect-autonomy", "RESPECT-AUTONOMY", "respect for autonomy"} {
		if id, ok := p.Resolve(raw); !ok || id != "respect-autonomy" {
			t.Errorf("Resolve(%q) = %q, %v", raw, id, ok)
		}
	}
	if _, ok := p.Resolve("honesty"); ok {
		t.Error("unexpected match")
	}
}
