package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpquery/internal/catalog"
)

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func TestFieldMapper_RegisteredAliases(t *testing.T) {
	c := defaultCatalog(t)
	m := NewFieldMapper(c)

	for _, em := range c.FieldMappings {
		for _, f := range em.Fields {
			for _, alias := range append(append([]string{}, f.UserFriendlyNames...), f.TechnicalNames...) {
				got := m.Resolve(em.Service, em.Entity, alias)
				if got != f.APIFieldName {
					// an alias may legitimately belong to an earlier mapping of the same entity
					mapped, ok := m.Lookup(em.Service, em.Entity, alias)
					require.True(t, ok, "%s/%s alias %q", em.Service, em.Entity, alias)
					assert.NotEmpty(t, mapped)
					continue
				}
				assert.Equal(t, f.APIFieldName, got)
			}
			assert.Equal(t, f.APIFieldName, m.Resolve(em.Service, em.Entity, f.APIFieldName),
				"mapping an API name must be idempotent")
		}
	}
}

func TestFieldMapper_Resolve(t *testing.T) {
	m := NewFieldMapper(defaultCatalog(t))

	tests := []struct {
		name    string
		service string
		entity  string
		input   string
		want    string
	}{
		{"user friendly", "API_GLACCOUNTLINEITEM", "GLAccountLineItem", "Amount", "AmountInFreeDefinedCurrency1"},
		{"case insensitive", "API_GLACCOUNTLINEITEM", "GLAccountLineItem", "fiscal year", "FiscalYear"},
		{"technical", "API_GLACCOUNTLINEITEM", "GLAccountLineItem", "RACCT", "GLAccount"},
		{"api name", "API_GLACCOUNTLINEITEM", "GLAccountLineItem", "glaccount", "GLAccount"},
		{"substring", "API_GLACCOUNTLINEITEM", "GLAccountLineItem", "TotalAmountEUR", "AmountInFreeDefinedCurrency1"},
		{"service alias", "API_GLACCOUNTLINEITEM_0001", "GLAccountLineItem", "OSL", "AmountInFreeDefinedCurrency1"},
		{"unknown field passes through", "API_GLACCOUNTLINEITEM", "GLAccountLineItem", "Segment", "Segment"},
		{"unknown entity passes through", "API_NOPE", "Nothing", "Amount", "Amount"},
		{"returns customer", "API_CUSTOMER_RETURNS_DELIVERY_SRV", "A_ReturnsDeliveryItem", "Customer", "CustomerID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Resolve(tt.service, tt.entity, tt.input))
		})
	}
}

func TestFieldMapper_MapFilters(t *testing.T) {
	m := NewFieldMapper(defaultCatalog(t))

	mapped, ops := m.MapFilters("API_GLACCOUNTLINEITEM", "GLAccountLineItem",
		map[string]string{"GL Account": "41000000", "Year": "2024", "Segment": "S1"},
		map[string]string{"Year": "ge"},
	)

	assert.Equal(t, map[string]string{
		"GLAccount":  "41000000",
		"FiscalYear": "2024",
		"Segment":    "S1",
	}, mapped)
	assert.Equal(t, map[string]string{"FiscalYear": "ge"}, ops)
}

func TestFieldMapper_AmountFields(t *testing.T) {
	m := NewFieldMapper(defaultCatalog(t))

	assert.True(t, m.IsAmountField("API_GLACCOUNTLINEITEM", "GLAccountLineItem", "TotalValue"))
	assert.True(t, m.IsAmountField("API_GLACCOUNTLINEITEM", "GLAccountLineItem", "OSL"))
	assert.False(t, m.IsAmountField("API_GLACCOUNTLINEITEM", "GLAccountLineItem", "FiscalYear"))
	assert.True(t, m.IsAmountField("API_NOPE", "Nothing", "NetAmount"))

	field, ok := m.PrimaryAmountField("API_GLACCOUNTLINEITEM", "GLAccountLineItem")
	assert.True(t, ok)
	assert.Equal(t, "AmountInFreeDefinedCurrency1", field)

	_, ok = m.PrimaryAmountField("API_BUSINESS_PARTNER", "A_BusinessPartner")
	assert.False(t, ok)
}
