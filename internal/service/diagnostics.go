package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"erpquery/internal/model"
)

const diagnosticsConcurrency = 4

// EntityCheck is the outcome of fetching one default entity without filters
type EntityCheck struct {
	ServiceName        string       `json:"serviceName"`
	EntityName         string       `json:"entityName"`
	ServiceTitle       string       `json:"serviceTitle"`
	RecordCount        int          `json:"recordCount"`
	HasData            bool         `json:"hasData"`
	SampleData         model.Record `json:"sampleData,omitempty"`
	RequiresParameters bool         `json:"requiresParameters,omitempty"`
	Error              string       `json:"error,omitempty"`
	TookMs             int64        `json:"tookMs"`
}

// ServiceCheck summarizes the entity checks of one service. A service is
// reachable when at least one of its entities answered without error.
type ServiceCheck struct {
	Name             string `json:"name"`
	Title            string `json:"title"`
	Reachable        bool   `json:"reachable"`
	EntitiesChecked  int    `json:"entitiesChecked"`
	EntitiesWithData int    `json:"entitiesWithData"`
}

// CheckEntities fetches every entity of the catalog's default list and reports which
// ones return data. Parameter-based services are listed but not called.
func (s *QueryService) CheckEntities(ctx context.Context) []EntityCheck {
	defaults := s.resolver.ProbeList()
	checks := make([]EntityCheck, len(defaults))

	var g errgroup.Group
	g.SetLimit(diagnosticsConcurrency)
	for i, p := range defaults {
		checks[i] = EntityCheck{
			ServiceName:  p.ServiceName,
			EntityName:   p.EntityName,
			ServiceTitle: p.ServiceTitle,
		}
		if s.validator.IsParameterBased(p.ServiceName) {
			checks[i].RequiresParameters = true
			continue
		}

		i, p := i, p
		g.Go(func() error {
			start := s.now()
			records, err := s.fetcher.Fetch(ctx, p.ServiceName, p.EntityName, nil)
			check := &checks[i]
			check.TookMs = s.now().Sub(start).Milliseconds()
			if err != nil {
				check.Error = remoteMessage(err)
				s.log.Debug("entity check failed",
					zap.String("service", p.ServiceName),
					zap.String("entity", p.EntityName),
					zap.Error(err),
				)
				return nil
			}
			check.RecordCount = len(records)
			check.HasData = len(records) > 0
			if check.HasData {
				check.SampleData = records[0]
			}
			return nil
		})
	}
	_ = g.Wait()

	return checks
}

// SummarizeServices groups entity checks by service in first-seen order
func (s *QueryService) SummarizeServices(checks []EntityCheck) []ServiceCheck {
	index := make(map[string]int)
	var out []ServiceCheck
	for _, c := range checks {
		i, ok := index[c.ServiceName]
		if !ok {
			i = len(out)
			index[c.ServiceName] = i
			out = append(out, ServiceCheck{Name: c.ServiceName, Title: s.catalog.ServiceTitle(c.ServiceName)})
		}
		if c.RequiresParameters {
			continue
		}
		out[i].EntitiesChecked++
		if c.Error == "" {
			out[i].Reachable = true
		}
		if c.HasData {
			out[i].EntitiesWithData++
		}
	}
	return out
}
