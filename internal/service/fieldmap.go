package service

import (
	"strings"

	"erpquery/internal/catalog"
)

// amountKeywords are checked in priority order when looking for the primary amount field
var amountKeywords = []string{"amount", "value", "currency", "osl", "sum"}

// FieldMapper translates user-facing field names into API field names
// using the catalog's per-entity mappings.
type FieldMapper struct {
	catalog *catalog.Catalog
}

// NewFieldMapper creates a field mapper over the given catalog
func NewFieldMapper(c *catalog.Catalog) *FieldMapper {
	return &FieldMapper{catalog: c}
}

// Resolve returns the API field name for input. Unknown names are returned
// unchanged so callers may pass API names directly.
func (m *FieldMapper) Resolve(service, entity, input string) string {
	if mapped, ok := m.Lookup(service, entity, input); ok {
		return mapped
	}
	return input
}

// Lookup is Resolve but reports whether a registered mapping matched.
func (m *FieldMapper) Lookup(service, entity, input string) (string, bool) {
	mappings := m.catalog.Fields(service, entity)
	if len(mappings) == 0 {
		return input, false
	}
	needle := strings.TrimSpace(input)

	for _, f := range mappings {
		if equalsAny(needle, f.UserFriendlyNames) {
			return f.APIFieldName, true
		}
	}
	for _, f := range mappings {
		if equalsAny(needle, f.TechnicalNames) {
			return f.APIFieldName, true
		}
	}
	for _, f := range mappings {
		if strings.EqualFold(needle, f.APIFieldName) {
			return f.APIFieldName, true
		}
	}

	lower := strings.ToLower(needle)
	for _, f := range mappings {
		for _, alias := range f.UserFriendlyNames {
			if alias != "" && strings.Contains(lower, strings.ToLower(alias)) {
				return f.APIFieldName, true
			}
		}
	}

	return input, false
}

// MapFilters resolves every key of filters. When two keys map to the same
// API field the one sorting last wins, so the result is deterministic.
func (m *FieldMapper) MapFilters(service, entity string, filters map[string]string, ops map[string]string) (map[string]string, map[string]string) {
	mapped := make(map[string]string, len(filters))
	mappedOps := make(map[string]string, len(ops))
	for _, f := range sortedKeys(filters) {
		api := m.Resolve(service, entity, f)
		mapped[api] = filters[f]
		if op, ok := ops[f]; ok {
			mappedOps[api] = op
		}
	}
	return mapped, mappedOps
}

// IsAmountField reports whether field names a monetary amount, either through
// a registered amount-like mapping or by its name.
func (m *FieldMapper) IsAmountField(service, entity, field string) bool {
	if containsKeyword(field, "amount", "value", "currency") {
		return true
	}
	mapped, ok := m.Lookup(service, entity, field)
	if !ok {
		return false
	}
	for _, f := range m.catalog.Fields(service, entity) {
		if f.APIFieldName == mapped && mappingMatches(f, amountKeywords...) {
			return true
		}
	}
	return false
}

// PrimaryAmountField returns the API name of the main amount field of an entity.
func (m *FieldMapper) PrimaryAmountField(service, entity string) (string, bool) {
	mappings := m.catalog.Fields(service, entity)
	for _, kw := range amountKeywords {
		for _, f := range mappings {
			if mappingMatches(f, kw) {
				return f.APIFieldName, true
			}
		}
	}
	return "", false
}

func mappingMatches(f catalog.FieldMapping, keywords ...string) bool {
	if containsKeyword(f.APIFieldName, keywords...) {
		return true
	}
	for _, alias := range f.UserFriendlyNames {
		if containsKeyword(alias, keywords...) {
			return true
		}
	}
	for _, alias := range f.TechnicalNames {
		if containsKeyword(alias, keywords...) {
			return true
		}
	}
	return false
}

func containsKeyword(s string, keywords ...string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func equalsAny(s string, candidates []string) bool {
	for _, c := range candidates {
		if strings.EqualFold(s, c) {
			return true
		}
	}
	return false
}
