package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"erpquery/internal/apperrors"
	"erpquery/internal/catalog"
	"erpquery/internal/model"
)

func TestQueryService_CheckEntities(t *testing.T) {
	fetcher := &fakeFetcher{
		records: map[string][]model.Record{
			"API_BUSINESS_PARTNER/A_BusinessPartner": {{"BusinessPartner": "1"}, {"BusinessPartner": "2"}},
			"API_BUSINESS_PARTNER/A_Customer":        {{"Customer": "90000"}},
		},
		errs: map[string]error{
			"API_GLACCOUNTLINEITEM/GLAccountLineItem": apperrors.New(apperrors.ErrCodeRemoteFetch, "boom").
				WithDetails("Resource not found for segment GLAccountLineItem"),
		},
	}
	s := newQueryService(t, &fakeInterpreter{}, fetcher)

	checks := s.CheckEntities(context.Background())
	defaults := s.resolver.ProbeList()
	require.Len(t, checks, len(defaults))
	assert.Len(t, fetcher.calls, len(defaults))
	for i, p := range defaults {
		assert.Equal(t, p.EntityName, checks[i].EntityName, "results keep catalog order")
	}

	assert.Equal(t, 2, checks[0].RecordCount)
	assert.True(t, checks[0].HasData)
	assert.Equal(t, "1", checks[0].SampleData["BusinessPartner"])

	assert.Equal(t, 1, checks[1].RecordCount)

	gl := checks[3]
	require.Equal(t, "GLAccountLineItem", gl.EntityName)
	assert.Equal(t, "Resource not found for segment GLAccountLineItem", gl.Error)
	assert.False(t, gl.HasData)

	for _, c := range fetcher.calls {
		assert.Empty(t, c.filters)
	}

	summary := s.SummarizeServices(checks)
	byName := make(map[string]ServiceCheck)
	for _, sc := range summary {
		byName[sc.Name] = sc
	}
	assert.Equal(t, "API_BUSINESS_PARTNER", summary[0].Name)
	assert.Equal(t, ServiceCheck{
		Name: "API_BUSINESS_PARTNER", Title: "Business Partner",
		Reachable: true, EntitiesChecked: 3, EntitiesWithData: 2,
	}, byName["API_BUSINESS_PARTNER"])
	assert.False(t, byName["API_GLACCOUNTLINEITEM"].Reachable)
	assert.True(t, byName["API_MATERIAL_DOCUMENT_SRV"].Reachable, "an empty answer still proves the service is up")
	assert.Zero(t, byName["API_MATERIAL_DOCUMENT_SRV"].EntitiesWithData)
}

func TestQueryService_CheckEntitiesSkipsParameterServices(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
services:
  - name: API_STOCK_SRV
    title: Stock
    entities: [A_Stock]
  - name: API_PLANT_SRV
    title: Plant
    entities: [A_Plant]
probeList:
  - {service: API_STOCK_SRV, entity: A_Stock}
  - {service: API_PLANT_SRV, entity: A_Plant}
parameterApis:
  - service: API_STOCK_SRV
    entity: A_Stock
    mandatoryFilters: [Plant]
`))
	require.NoError(t, err)
	fetcher := &fakeFetcher{records: map[string][]model.Record{"API_PLANT_SRV/A_Plant": {{"Plant": "1010"}}}}
	log := zaptest.NewLogger(t)
	s := NewQueryService(cat, &fakeInterpreter{}, fetcher, NewSessionStore(0, log), log)

	checks := s.CheckEntities(context.Background())
	require.Len(t, checks, 2)
	assert.True(t, checks[0].RequiresParameters)
	assert.Empty(t, checks[0].Error)
	assert.True(t, checks[1].HasData)

	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, "API_PLANT_SRV", fetcher.calls[0].service)

	summary := s.SummarizeServices(checks)
	require.Len(t, summary, 2)
	assert.Zero(t, summary[0].EntitiesChecked)
	assert.False(t, summary[0].Reachable)
}
