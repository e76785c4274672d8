package guidance

import (
	"bytes"
	_ "embed"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"astroguide/internal/domain"
)

//go:embed kinds.yaml
var defaultCatalogYAML []byte

// KindSpec describes how one job kind is generated.
type KindSpec struct {
	Kind         domain.JobKind  `yaml:"kind"`
	Title        string          `yaml:"title"`
	Sections     []string        `yaml:"sections"`
	Tone         string          `yaml:"tone"`
	RequiresPlan domain.UserPlan `yaml:"requires_plan"`
}

// LocalizedTitle title-cases the catalog title using the locale's casing rules.
func (s KindSpec) LocalizedTitle(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return cases.Title(tag).String(s.Title)
}

// Catalog maps job kinds to their generation spec.
type Catalog struct {
	kinds map[domain.JobKind]KindSpec
}

type catalogFile struct {
	Kinds []KindSpec `yaml:"kinds"`
}

// DefaultCatalog returns the embedded catalog. It panics on a malformed
// embedded file since that is a build defect.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("guidance: embedded catalog: %v", err))
	}
	return c
}

// ParseCatalog decodes a catalog, rejecting unknown fields and unknown kinds.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{kinds: make(map[domain.JobKind]KindSpec, len(file.Kinds))}
	for _, spec := range file.Kinds {
		kind, err := domain.ParseJobKind(string(spec.Kind))
		if err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
		if _, dup := c.kinds[kind]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate kind %s", kind)
		}
		if len(spec.Sections) == 0 {
			return nil, fmt.Errorf("parse catalog: kind %s has no sections", kind)
		}
		spec.Kind = kind
		c.kinds[kind] = spec
	}
	return c, nil
}

// Lookup returns the spec for kind.
func (c *Catalog) Lookup(kind domain.JobKind) (KindSpec, error) {
	spec, ok := c.kinds[kind]
	if !ok {
		return KindSpec{}, fmt.Errorf("%w: %s not in catalog", domain.ErrUnknownJobKind, kind)
	}
	return spec, nil
}

// RequiredPlan returns the plan a kind is gated behind, empty when any plan may
// request it.
func (c *Catalog) RequiredPlan(kind domain.JobKind) (domain.UserPlan, error) {
	spec, err := c.Lookup(kind)
	if err != nil {
		return "", err
	}
	return spec.RequiresPlan, nil
}

// Kinds lists catalogued kinds in domain order.
func (c *Catalog) Kinds() []domain.JobKind {
	out := make([]domain.JobKind, 0, len(c.kinds))
	for _, k := range domain.JobKinds {
		if _, ok := c.kinds[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
