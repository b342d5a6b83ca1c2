package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"erpquery/internal/model"
)

func TestParameterValidator(t *testing.T) {
	v := NewParameterValidator(defaultCatalog(t))
	const returns = "API_CUSTOMER_RETURNS_DELIVERY_SRV"

	assert.True(t, v.IsParameterBased(returns))
	assert.False(t, v.IsParameterBased("API_BUSINESS_PARTNER"))
	assert.Equal(t, []string{"CustomerID"}, v.MandatoryFilters(returns))
	assert.Equal(t, []string{}, v.MandatoryFilters("API_BUSINESS_PARTNER"))

	tests := []struct {
		name    string
		service string
		filters []model.Filter
		want    ValidationResult
	}{
		{
			name:    "missing",
			service: returns,
			filters: nil,
			want:    ValidationResult{Valid: false, Missing: []string{"CustomerID"}},
		},
		{
			name:    "present",
			service: returns,
			filters: []model.Filter{{Field: "CustomerID", Operator: model.OpEq, Value: "90000"}},
			want:    ValidationResult{Valid: true, Missing: []string{}},
		},
		{
			name:    "unmapped name does not count",
			service: returns,
			filters: []model.Filter{{Field: "Customer", Operator: model.OpEq, Value: "90000"}},
			want:    ValidationResult{Valid: false, Missing: []string{"CustomerID"}},
		},
		{
			name:    "regular service",
			service: "API_BUSINESS_PARTNER",
			filters: nil,
			want:    ValidationResult{Valid: true, Missing: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Validate(tt.service, tt.filters))
		})
	}
}

func TestParameterValidator_ExampleQuery(t *testing.T) {
	v := NewParameterValidator(defaultCatalog(t))

	assert.Equal(t, "Show me returns delivery items for customer 90000",
		v.ExampleQuery("API_CUSTOMER_RETURNS_DELIVERY_SRV", "A_ReturnsDeliveryItem"))
	assert.Equal(t, "Show me A_Foo for customer 90000", v.ExampleQuery("API_UNKNOWN", "A_Foo"))
}
