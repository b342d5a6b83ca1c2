package service

import (
	"fmt"

	"erpquery/internal/catalog"
	"erpquery/internal/model"
)

// ValidationResult is the outcome of a mandatory-filter check
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing"`
}

// ParameterValidator enforces mandatory filters of parameter-based APIs
type ParameterValidator struct {
	catalog *catalog.Catalog
}

// NewParameterValidator creates a validator over the catalog
func NewParameterValidator(c *catalog.Catalog) *ParameterValidator {
	return &ParameterValidator{catalog: c}
}

// IsParameterBased reports whether service requires mandatory filters
func (v *ParameterValidator) IsParameterBased(service string) bool {
	_, ok := v.catalog.ParameterAPI(service)
	return ok
}

// MandatoryFilters returns the mandatory filter names of service in configured order
func (v *ParameterValidator) MandatoryFilters(service string) []string {
	p, ok := v.catalog.ParameterAPI(service)
	if !ok {
		return []string{}
	}
	return append([]string(nil), p.MandatoryFilters...)
}

// Validate checks that every mandatory filter appears as a field in filters.
// Field names are compared exactly; map them before calling.
func (v *ParameterValidator) Validate(service string, filters []model.Filter) ValidationResult {
	mandatory := v.MandatoryFilters(service)
	provided := make(map[string]bool, len(filters))
	for _, f := range filters {
		provided[f.Field] = true
	}

	missing := []string{}
	for _, m := range mandatory {
		if !provided[m] {
			missing = append(missing, m)
		}
	}
	return ValidationResult{Valid: len(missing) == 0, Missing: missing}
}

// ExampleQuery returns a sample query for a parameter-based service
func (v *ParameterValidator) ExampleQuery(service, entity string) string {
	if p, ok := v.catalog.ParameterAPI(service); ok && p.ExampleQuery != "" {
		return p.ExampleQuery
	}
	return fmt.Sprintf("Show me %s for customer 90000", entity)
}
