package service

import (
	"fmt"
	"math"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"erpquery/internal/apperrors"
	"erpquery/internal/model"
)

// DefaultPrecision is the number of decimals aggregation results are rounded to
const DefaultPrecision = 2

// AggregationRequest describes one aggregation over fetched records
type AggregationRequest struct {
	Records   []model.Record
	Field     string
	Type      model.AggregationType
	Precision int32
}

// Aggregate computes the requested aggregate.
//
// Missing, null, empty and non-numeric values count as zero. Sums and
// averages are computed exactly and rounded half away from zero to
// Precision decimals; the average divides the unrounded sum. Empty input
// yields zero for every type.
func Aggregate(req AggregationRequest) (float64, error) {
	if !req.Type.Valid() {
		return 0, apperrors.New(apperrors.ErrCodeAggregation, fmt.Sprintf("unsupported aggregation type %q", req.Type))
	}
	if req.Type == model.AggregationCount {
		return float64(len(req.Records)), nil
	}
	if len(req.Records) == 0 {
		return 0, nil
	}

	switch req.Type {
	case model.AggregationSum:
		return sumOf(req.Records, req.Field).Round(req.Precision).InexactFloat64(), nil

	case model.AggregationAvg:
		sum := sumOf(req.Records, req.Field)
		avg := sum.Div(decimal.NewFromInt(int64(len(req.Records))))
		return avg.Round(req.Precision).InexactFloat64(), nil

	case model.AggregationMax, model.AggregationMin:
		result := numberOrZero(req.Records[0][req.Field])
		for _, r := range req.Records[1:] {
			v := numberOrZero(r[req.Field])
			if req.Type == model.AggregationMax && v.GreaterThan(result) {
				result = v
			}
			if req.Type == model.AggregationMin && v.LessThan(result) {
				result = v
			}
		}
		return result.InexactFloat64(), nil
	}

	return 0, apperrors.New(apperrors.ErrCodeAggregation, fmt.Sprintf("unsupported aggregation type %q", req.Type))
}

func sumOf(records []model.Record, field string) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		if v, ok := parseNumber(r[field]); ok {
			sum = sum.Add(v)
		}
	}
	return sum
}

func numberOrZero(v any) decimal.Decimal {
	if d, ok := parseNumber(v); ok {
		return d
	}
	return decimal.Zero
}

// parseNumber converts OData values to decimals. Amounts usually arrive as strings.
func parseNumber(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return parseNumber(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case int32:
		return decimal.NewFromInt32(n), true
	case json.Number:
		return parseNumber(n.String())
	case decimal.Decimal:
		return n, true
	}
	return decimal.Zero, false
}

// ResolveAggregationField picks the record key to aggregate on.
//
// It prefers field itself, then a case-insensitive match, then the first
// key (in sorted order) containing "amount", "currency" or "value". found
// is false when none applies and field is returned unchanged.
func ResolveAggregationField(records []model.Record, field string) (resolved string, found bool) {
	if len(records) == 0 {
		return field, false
	}
	first := records[0]
	if _, ok := first[field]; ok {
		return field, true
	}

	keys := model.FieldNames(records)
	for _, k := range keys {
		if strings.EqualFold(k, field) {
			return k, true
		}
	}
	for _, k := range keys {
		if containsKeyword(k, "amount", "currency", "value") {
			return k, true
		}
	}
	return field, false
}
