// Package catalog holds the static service/entity tables: known entities,
// synonym groups, descriptive names, field mappings and parameter-based APIs.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// URL patterns for parameter-based APIs.
const (
	URLPatternFunctionImport = "function_import"
	URLPatternQueryParams    = "query_params"
)

// EntityRef points at one entity set of one service.
type EntityRef struct {
	Service string `yaml:"service"`
	Entity  string `yaml:"entity"`
}

// Service is a whitelisted remote OData service.
type Service struct {
	Name     string   `yaml:"name"`
	Title    string   `yaml:"title"`
	Aliases  []string `yaml:"aliases"`
	Entities []string `yaml:"entities"`
}

// KnownEntity is an exact-match shortcut from a name to an entity.
type KnownEntity struct {
	Name    string `yaml:"name"`
	Service string `yaml:"service"`
	Entity  string `yaml:"entity"`
}

// SynonymGroup maps alternate phrasings to an entity. Target is nil for
// groups that only document phrasing.
type SynonymGroup struct {
	Group  string     `yaml:"group"`
	Target *EntityRef `yaml:"target"`
	Terms  []string   `yaml:"terms"`
}

// CategoryFallback lists entities to try when the input mentions a category keyword.
type CategoryFallback struct {
	Keywords   []string    `yaml:"keywords"`
	Candidates []EntityRef `yaml:"candidates"`
}

// Description is an entry of the descriptive-name index.
type Description struct {
	Service string `yaml:"service"`
	Entity  string `yaml:"entity"`
	Title   string `yaml:"title"`
}

// FieldMapping maps aliases to a canonical API field name.
type FieldMapping struct {
	APIFieldName      string   `yaml:"api"`
	UserFriendlyNames []string `yaml:"userFriendly"`
	TechnicalNames    []string `yaml:"technical"`
	Description       string   `yaml:"description"`
}

// EntityFieldMappings holds the mappings of one (service, entity) pair.
type EntityFieldMappings struct {
	Service string         `yaml:"service"`
	Entity  string         `yaml:"entity"`
	Fields  []FieldMapping `yaml:"fields"`
}

// ParameterAPI describes a service that refuses to answer without mandatory filters.
type ParameterAPI struct {
	Service          string   `yaml:"service"`
	Entity           string   `yaml:"entity"`
	MandatoryFilters []string `yaml:"mandatoryFilters"`
	OptionalFilters  []string `yaml:"optionalFilters"`
	URLPattern       string   `yaml:"urlPattern"`
	Description      string   `yaml:"description"`
	ExampleQuery     string   `yaml:"exampleQuery"`
}

// Catalog is the immutable set of static tables. Build it with Load or Default.
type Catalog struct {
	Services         []Service             `yaml:"services"`
	KnownEntities    []KnownEntity         `yaml:"knownEntities"`
	Synonyms         []SynonymGroup        `yaml:"synonyms"`
	CategoryFallback CategoryFallback      `yaml:"categoryFallback"`
	Descriptions     []Description         `yaml:"descriptions"`
	ProbeList        []EntityRef           `yaml:"probeList"`
	ParameterAPIs    []ParameterAPI        `yaml:"parameterApis"`
	FieldMappings    []EntityFieldMappings `yaml:"fieldMappings"`

	serviceIndex map[string]*Service
	aliasIndex   map[string]string
	paramIndex   map[string]*ParameterAPI
	fieldIndex   map[EntityRef][]FieldMapping
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("validating catalog: %w", err)
	}
	c.index()
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no services defined")
	}
	seen := make(map[string]bool)
	declared := make(map[string]bool)
	for _, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("service with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate service %s", s.Name)
		}
		seen[s.Name] = true
		declared[s.Name] = true
		for _, a := range s.Aliases {
			declared[a] = true
		}
	}
	for _, k := range c.KnownEntities {
		if k.Name == "" || k.Service == "" || k.Entity == "" {
			return fmt.Errorf("known entity %q is incomplete", k.Name)
		}
	}
	for _, g := range c.Synonyms {
		if len(g.Terms) == 0 {
			return fmt.Errorf("synonym group %s has no terms", g.Group)
		}
	}
	for _, fm := range c.FieldMappings {
		for _, f := range fm.Fields {
			if f.APIFieldName == "" {
				return fmt.Errorf("field mapping in %s/%s has empty api name", fm.Service, fm.Entity)
			}
		}
	}
	for _, p := range c.ParameterAPIs {
		if len(p.MandatoryFilters) == 0 {
			return fmt.Errorf("parameter API %s has no mandatory filters", p.Service)
		}
		switch p.URLPattern {
		case "", URLPatternFunctionImport, URLPatternQueryParams:
		default:
			return fmt.Errorf("parameter API %s has unknown url pattern %q", p.Service, p.URLPattern)
		}
	}
	if problems := c.danglingReferences(declared); len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// danglingReferences lists every entry that names a service which is
// neither declared nor an alias of a declared one.
func (c *Catalog) danglingReferences(declared map[string]bool) []string {
	var problems []string
	check := func(where, svc string) {
		if !declared[svc] {
			problems = append(problems, fmt.Sprintf("%s references unknown service %s", where, svc))
		}
	}
	for _, k := range c.KnownEntities {
		check("known entity "+k.Name, k.Service)
	}
	for _, g := range c.Synonyms {
		if g.Target != nil {
			check("synonym group "+g.Group, g.Target.Service)
		}
	}
	for _, r := range c.CategoryFallback.Candidates {
		check("category candidate "+r.Entity, r.Service)
	}
	for _, d := range c.Descriptions {
		check("description "+d.Title, d.Service)
	}
	for _, r := range c.ProbeList {
		check("probe entry "+r.Entity, r.Service)
	}
	for _, p := range c.ParameterAPIs {
		check("parameter API "+p.Entity, p.Service)
	}
	for _, fm := range c.FieldMappings {
		check("field mapping "+fm.Entity, fm.Service)
	}
	return problems
}

func (c *Catalog) index() {
	c.serviceIndex = make(map[string]*Service, len(c.Services))
	c.aliasIndex = make(map[string]string)
	for i := range c.Services {
		s := &c.Services[i]
		c.serviceIndex[s.Name] = s
		for _, a := range s.Aliases {
			c.aliasIndex[a] = s.Name
		}
	}

	c.paramIndex = make(map[string]*ParameterAPI, len(c.ParameterAPIs))
	for i := range c.ParameterAPIs {
		p := &c.ParameterAPIs[i]
		if p.URLPattern == "" {
			p.URLPattern = URLPatternQueryParams
		}
		c.paramIndex[p.Service] = p
	}

	c.fieldIndex = make(map[EntityRef][]FieldMapping, len(c.FieldMappings))
	for _, fm := range c.FieldMappings {
		ref := EntityRef{Service: c.CanonicalService(fm.Service), Entity: fm.Entity}
		c.fieldIndex[ref] = append(c.fieldIndex[ref], fm.Fields...)
	}
}

// CanonicalService maps a service alias to its base name.
func (c *Catalog) CanonicalService(name string) string {
	if base, ok := c.aliasIndex[name]; ok {
		return base
	}
	return name
}

// Service returns the whitelisted service with the given name or alias.
func (c *Catalog) Service(name string) (*Service, bool) {
	s, ok := c.serviceIndex[c.CanonicalService(strings.TrimSpace(name))]
	return s, ok
}

// ServiceTitle returns the display title of a service, or its name.
func (c *Catalog) ServiceTitle(name string) string {
	if s, ok := c.Service(name); ok && s.Title != "" {
		return s.Title
	}
	return name
}

// ParameterAPI returns the parameter-based API config of a service.
func (c *Catalog) ParameterAPI(service string) (*ParameterAPI, bool) {
	p, ok := c.paramIndex[c.CanonicalService(service)]
	return p, ok
}

// Fields returns the field mappings of a (service, entity) pair in registration order.
func (c *Catalog) Fields(service, entity string) []FieldMapping {
	return c.fieldIndex[EntityRef{Service: c.CanonicalService(service), Entity: entity}]
}
