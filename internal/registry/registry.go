// Package registry holds the injected flag-category and principle registries.
// Deployments swap registries (general ethics, mental health, or a YAML file)
// without touching merge or aggregation logic.
package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OtherCategory is the escape hatch for flags outside the registry.
const OtherCategory = "other"

// Category is one flag category.
type Category struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Keywords    []string `yaml:"keywords" json:"keywords,omitempty"`
}

// Categories is an ordered, closed set of flag categories.
type Categories struct {
	list  []Category
	index map[string]int
}

// NewCategories builds a registry, rejecting empty and duplicate ids.
func NewCategories(cats []Category) (*Categories, error) {
	c := &Categories{index: make(map[string]int, len(cats))}
	for _, cat := range cats {
		id := strings.TrimSpace(cat.ID)
		if id == "" {
			return nil, fmt.Errorf("category %q has no id", cat.Name)
		}
		if id == OtherCategory {
			return nil, fmt.Errorf("category id %q is reserved", OtherCategory)
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("duplicate category id %q", id)
		}
		cat.ID = id
		if cat.Name == "" {
			cat.Name = id
		}
		c.index[id] = len(c.list)
		c.list = append(c.list, cat)
	}
	return c, nil
}

// All returns the categories in registry order.
func (c *Categories) All() []Category {
	return append([]Category(nil), c.list...)
}

// IDs returns the category ids in registry order.
func (c *Categories) IDs() []string {
	ids := make([]string, len(c.list))
	for i, cat := range c.list {
		ids[i] = cat.ID
	}
	return ids
}

// Get looks up a category by id.
func (c *Categories) Get(id string) (Category, bool) {
	i, ok := c.index[id]
	if !ok {
		return Category{}, false
	}
	return c.list[i], true
}

// Has reports whether id is a registered category.
func (c *Categories) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Resolve maps a raw category label onto a registered id, or OtherCategory.
// Matching ignores case and treats spaces and underscores as dashes.
func (c *Categories) Resolve(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "-", "_", "-").Replace(key)
	if c.Has(key) {
		return key
	}
	for _, cat := range c.list {
		if strings.EqualFold(cat.Name, strings.TrimSpace(raw)) {
			return cat.ID
		}
	}
	return OtherCategory
}

// Len returns the number of registered categories.
func (c *Categories) Len() int {
	return len(c.list)
}

// Principle is one behavioral principle scored on the -5..+5 scale.
type Principle struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Rubric      string `yaml:"rubric" json:"rubric,omitempty"`
}

// Principles is an ordered principle registry.
type Principles struct {
	list  []Principle
	index map[string]int
}

// NewPrinciples builds a registry, rejecting empty and duplicate ids.
func NewPrinciples(ps []Principle) (*Principles, error) {
	r := &Principles{index: make(map[string]int, len(ps))}
	for _, p := range ps {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("principle %q has no id", p.Name)
		}
		if _, dup := r.index[id]; dup {
			return nil, fmt.Errorf("duplicate principle id %q", id)
		}
		p.ID = id
		if p.Name == "" {
			p.Name = id
		}
		r.index[id] = len(r.list)
		r.list = append(r.list, p)
	}
	return r, nil
}

// All returns the principles in registry order.
func (r *Principles) All() []Principle {
	return append([]Principle(nil), r.list...)
}

// Get looks up a principle by id.
func (r *Principles) Get(id string) (Principle, bool) {
	i, ok := r.index[id]
	if !ok {
		return Principle{}, false
	}
	return r.list[i], true
}

// Resolve maps a raw principle reference (id or name, any case) to an id.
func (r *Principles) Resolve(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if _, ok := r.index[raw]; ok {
		return raw, true
	}
	for _, p := range r.list {
		if strings.EqualFold(p.ID, raw) || strings.EqualFold(p.Name, raw) {
			return p.ID, true
		}
	}
	return "", false
}

// Len returns the number of registered principles.
func (r *Principles) Len() int {
	return len(r.list)
}

type fileFormat struct {
	Categories []Category  `yaml:"categories"`
	Principles []Principle `yaml:"principles"`
}

// Set is a category registry paired with a principle registry.
type Set struct {
	Categories *Categories
	Principles *Principles
}

// Load builds a registry set from a preset name and an optional YAML file.
// Sections present in the file replace the preset's.
func Load(preset, path string) (*Set, error) {
	cats, principles, err := presetLists(preset)
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read registry file: %w", err)
		}
		var f fileFormat
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse registry file: %w", err)
		}
		if len(f.Categories) > 0 {
			cats = f.Categories
		}
		if len(f.Principles) > 0 {
			principles = f.Principles
		}
	}

	c, err := NewCategories(cats)
	if err != nil {
		return nil, err
	}
	p, err := NewPrinciples(principles)
	if err != nil {
		return nil, err
	}
	return &Set{Categories: c, Principles: p}, nil
}

// MustPreset returns a built-in registry set and panics on unknown names.
func MustPreset(name string) *Set {
	s, err := Load(name, "")
	if err != nil {
		panic(err)
	}
	return s
}
