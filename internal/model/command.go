package model

import (
	"fmt"
	"sort"
)

// CommandKind names the command variants the interpreter may produce
type CommandKind string

const (
	CommandClarifyService CommandKind = "clarify_service"
	CommandSelectService  CommandKind = "select_service"
	CommandAggregateData  CommandKind = "aggregate_data"
)

// AggregationType is one of the supported aggregate functions
type AggregationType string

const (
	AggregationSum   AggregationType = "sum"
	AggregationCount AggregationType = "count"
	AggregationAvg   AggregationType = "avg"
	AggregationMax   AggregationType = "max"
	AggregationMin   AggregationType = "min"
)

// Valid reports whether t is a supported aggregation
func (t AggregationType) Valid() bool {
	switch t {
	case AggregationSum, AggregationCount, AggregationAvg, AggregationMax, AggregationMin:
		return true
	}
	return false
}

// Command is the structured form of a user query.
//
// Only the fields relevant to Kind are set:
//   - clarify_service: EntityName, Filters
//   - select_service: ServiceName
//   - aggregate_data: EntityName, AggregationType, AggregationField, Filters
//
// Operators holds the comparison operator per filter field when the
// interpreter supplied one other than eq.
type Command struct {
	Kind             CommandKind       `json:"command"`
	EntityName       string            `json:"entityName,omitempty"`
	ServiceName      string            `json:"serviceName,omitempty"`
	AggregationType  AggregationType   `json:"aggregationType,omitempty"`
	AggregationField string            `json:"aggregationField,omitempty"`
	Filters          map[string]string `json:"filters,omitempty"`
	Operators        map[string]string `json:"operators,omitempty"`
	Confidence       float64           `json:"confidence,omitempty"`
}

// Validate checks the per-kind required fields
func (c *Command) Validate() error {
	switch c.Kind {
	case CommandClarifyService:
		if c.EntityName == "" {
			return fmt.Errorf("clarify_service requires entityName")
		}
	case CommandSelectService:
		if c.ServiceName == "" {
			return fmt.Errorf("select_service requires serviceName")
		}
	case CommandAggregateData:
		if c.EntityName == "" {
			return fmt.Errorf("aggregate_data requires entityName")
		}
		if !c.AggregationType.Valid() {
			return fmt.Errorf("aggregate_data has unsupported aggregationType %q", c.AggregationType)
		}
		if c.AggregationField == "" && c.AggregationType != AggregationCount {
			return fmt.Errorf("aggregate_data requires aggregationField")
		}
	default:
		return fmt.Errorf("unknown command %q", c.Kind)
	}
	return nil
}

// Operator returns the operator for field, defaulting to eq
func (c *Command) Operator(field string) string {
	if op, ok := c.Operators[field]; ok && op != "" {
		return op
	}
	return OpEq
}

// Filter operators understood by the OData client
const (
	OpEq         = "eq"
	OpNe         = "ne"
	OpGt         = "gt"
	OpLt         = "lt"
	OpGe         = "ge"
	OpLe         = "le"
	OpContains   = "contains"
	OpStartsWith = "startswith"
)

// ValidOperator reports whether op is a supported filter operator
func ValidOperator(op string) bool {
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpGe, OpLe, OpContains, OpStartsWith:
		return true
	}
	return false
}

// Filter is a single field comparison sent to the remote service
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// FiltersFromMap builds a filter list ordered by field name. ops may be nil.
func FiltersFromMap(values map[string]string, ops map[string]string) []Filter {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filters := make([]Filter, 0, len(keys))
	for _, k := range keys {
		op := ops[k]
		if op == "" {
			op = OpEq
		}
		filters = append(filters, Filter{Field: k, Operator: op, Value: values[k]})
	}
	return filters
}
