package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"erpquery/internal/apperrors"
	"erpquery/internal/cache"
	"erpquery/internal/logger"
	"erpquery/internal/metrics"
	"erpquery/internal/model"
	"erpquery/internal/utils"
)

const commandSchema = `{
  "type": "object",
  "required": ["command"],
  "properties": {
    "command": {"type": "string", "enum": ["clarify_service", "select_service", "aggregate_data"]},
    "confidence": {"type": "number"},
    "args": {
      "type": "object",
      "properties": {
        "entityName": {"type": "string"},
        "serviceName": {"type": "string"},
        "aggregationType": {"type": "string", "enum": ["sum", "count", "avg", "max", "min"]},
        "aggregationField": {"type": "string"},
        "filters": {
          "oneOf": [
            {"type": "null"},
            {"type": "object", "additionalProperties": {"type": ["string", "number", "boolean", "null"]}},
            {
              "type": "array",
              "items": {
                "type": "object",
                "required": ["field", "value"],
                "properties": {
                  "field": {"type": "string", "minLength": 1},
                  "operator": {"type": "string", "enum": ["eq", "ne", "gt", "lt", "ge", "le", "contains", "startswith"]},
                  "value": {"type": ["string", "number", "boolean"]}
                }
              }
            }
          ]
        }
      }
    }
  }
}`

const interpreterSystemPrompt = `You translate questions about ERP business data into a single JSON command.

Commands:
1. "clarify_service" with args {"entityName", "filters"?}: the user wants records of an entity.
2. "select_service" with args {"serviceName"}: only when the user explicitly names a service, e.g. "use API_BUSINESS_PARTNER".
3. "aggregate_data" with args {"entityName", "aggregationType", "aggregationField", "filters"?}:
   totals, counts, averages, maxima or minima. aggregationType is one of sum, count, avg, max, min.

Rules:
- entityName is the core business noun in PascalCase. Never fold filter values into it
  ("SalesForProductE10" is wrong; use entityName "Sales" with filters {"Product": "E10"}).
- filters is either an object of PascalCase field names to values, or a list of
  {"field", "operator", "value"} when an operator other than equality is needed.
  Operators: eq, ne, gt, lt, ge, le, contains, startswith.
- For G/L account questions extract GLAccount, FiscalYear, CompanyCode and Ledger filters when mentioned.
- Include a "confidence" between 0 and 1.

Examples:
- "show me customer 90000" -> {"command": "clarify_service", "args": {"entityName": "Customer", "filters": {"BusinessPartner": "90000"}}, "confidence": 0.9}
- "customers named IML" -> {"command": "clarify_service", "args": {"entityName": "Customer", "filters": [{"field": "BusinessPartnerName", "operator": "contains", "value": "IML"}]}, "confidence": 0.8}
- "total amount for GL Account 41000000" -> {"command": "aggregate_data", "args": {"entityName": "GLAccount", "aggregationType": "sum", "aggregationField": "Amount", "filters": {"GLAccount": "41000000"}}, "confidence": 0.9}
- "how many products" -> {"command": "aggregate_data", "args": {"entityName": "Product", "aggregationType": "count", "aggregationField": "Product"}, "confidence": 0.9}
- "returns delivery items for customer 90000" -> {"command": "clarify_service", "args": {"entityName": "A_ReturnsDeliveryItem", "filters": {"CustomerID": "90000"}}, "confidence": 0.9}

Respond with the JSON object only.`

// rawCommand is the wire shape produced by the language model
type rawCommand struct {
	Command    string         `json:"command"`
	Args       map[string]any `json:"args"`
	Confidence float64        `json:"confidence"`
}

// LLMInterpreter interprets queries with an OpenAI-compatible chat model
type LLMInterpreter struct {
	client ChatCompleter
	cache  cache.Cache
	ttl    time.Duration
	schema *gojsonschema.Schema
	log    *zap.Logger
}

// NewLLMInterpreter creates an interpreter. cache may be nil.
func NewLLMInterpreter(client ChatCompleter, c cache.Cache, ttl time.Duration, log *zap.Logger) (*LLMInterpreter, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(commandSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling command schema: %w", err)
	}
	if c == nil {
		c = cache.Nop{}
	}
	log = logger.OrNop(log)
	return &LLMInterpreter{client: client, cache: c, ttl: ttl, schema: schema, log: log}, nil
}

// Interpret asks the model for a command and validates its shape before returning it
func (i *LLMInterpreter) Interpret(ctx context.Context, text string, session *model.SessionContext) (*model.Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.New(apperrors.ErrCodeInterpretation, "empty query")
	}
	if i.client == nil || !i.client.IsEnabled() {
		return nil, apperrors.New(apperrors.ErrCodeInterpretation, "language model is not configured")
	}

	key := interpreterCacheKey(text, session)
	if cached, ok := i.cache.Get(ctx, key); ok {
		var cmd model.Command
		if err := json.Unmarshal(cached, &cmd); err == nil && cmd.Validate() == nil {
			metrics.ObserveCache("interpreter", true)
			i.log.Debug("using cached interpretation", zap.String("command", string(cmd.Kind)))
			return &cmd, nil
		}
	}
	metrics.ObserveCache("interpreter", false)

	resp, err := i.client.ChatCompletion(ctx, ChatCompletionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: interpreterSystemPrompt + sessionPrompt(session)},
			{Role: "user", Content: text},
		},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInterpretation, "language model call failed", err)
	}

	cmd, err := i.ParseCommand(resp.Content())
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(cmd); err == nil {
		i.cache.Set(ctx, key, encoded, i.ttl)
	}
	return cmd, nil
}

// ParseCommand validates model output against the command schema and
// normalizes it into a Command.
func (i *LLMInterpreter) ParseCommand(content string) (*model.Command, error) {
	var doc map[string]any
	if err := utils.ParseAIJSON(content, &doc); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInterpretation, "model output is not a JSON object", err)
	}
	normalizeDocument(doc)

	result, err := i.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInterpretation, "schema validation failed", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, apperrors.New(apperrors.ErrCodeInterpretation, "model output does not match the command schema").
			WithDetails(strings.Join(msgs, "; "))
	}

	var rc rawCommand
	if err := json.Unmarshal(mustMarshal(doc), &rc); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInterpretation, "decoding command", err)
	}

	cmd := &model.Command{
		Kind:             model.CommandKind(rc.Command),
		EntityName:       strings.TrimSpace(stringArg(rc.Args, "entityName")),
		ServiceName:      strings.TrimSpace(stringArg(rc.Args, "serviceName")),
		AggregationType:  model.AggregationType(stringArg(rc.Args, "aggregationType")),
		AggregationField: strings.TrimSpace(stringArg(rc.Args, "aggregationField")),
		Confidence:       rc.Confidence,
	}
	cmd.Filters, cmd.Operators = decodeFilters(rc.Args["filters"])

	if err := cmd.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInterpretation, "incomplete command", err)
	}
	return cmd, nil
}

// normalizeDocument accepts args at the top level and lowercases enum values
func normalizeDocument(doc map[string]any) {
	args, ok := doc["args"].(map[string]any)
	if !ok {
		args = map[string]any{}
		for _, k := range []string{"entityName", "serviceName", "aggregationType", "aggregationField", "filters"} {
			if v, present := doc[k]; present {
				args[k] = v
				delete(doc, k)
			}
		}
		doc["args"] = args
	}
	if c, ok := doc["command"].(string); ok {
		doc["command"] = strings.ToLower(strings.TrimSpace(c))
	}
	if t, ok := args["aggregationType"].(string); ok {
		args["aggregationType"] = strings.ToLower(strings.TrimSpace(t))
	}
	if list, ok := args["filters"].([]any); ok {
		for _, item := range list {
			if f, ok := item.(map[string]any); ok {
				if op, ok := f["operator"].(string); ok {
					f["operator"] = strings.ToLower(strings.TrimSpace(op))
				}
			}
		}
	}
}

func decodeFilters(v any) (map[string]string, map[string]string) {
	filters := map[string]string{}
	ops := map[string]string{}

	switch f := v.(type) {
	case map[string]any:
		for k, val := range f {
			if s, ok := scalarString(val); ok && strings.TrimSpace(k) != "" {
				filters[strings.TrimSpace(k)] = s
			}
		}
	case []any:
		for _, item := range f {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			field, _ := m["field"].(string)
			field = strings.TrimSpace(field)
			value, ok := scalarString(m["value"])
			if field == "" || !ok {
				continue
			}
			filters[field] = value
			if op, _ := m["operator"].(string); op != "" && op != model.OpEq {
				ops[field] = op
			}
		}
	}

	if len(ops) == 0 {
		ops = nil
	}
	return filters, ops
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	case json.Number:
		return s.String(), true
	}
	return "", false
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// sessionPrompt describes the conversation so far so follow-ups can reuse it
func sessionPrompt(s *model.SessionContext) string {
	if s == nil || (s.LastEntity == "" && len(s.ActiveFilters) == 0) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nConversation context:\n")
	fmt.Fprintf(&b, "- Last entity: %s\n", orNone(s.LastEntity))
	fmt.Fprintf(&b, "- Last service: %s\n", orNone(s.LastService))
	fmt.Fprintf(&b, "- Available fields: %s\n", orNone(strings.Join(s.LastFields, ", ")))
	if len(s.ActiveFilters) > 0 {
		filters, _ := json.Marshal(s.ActiveFilters)
		fmt.Fprintf(&b, "- Active filters: %s\n", filters)
	} else {
		b.WriteString("- Active filters: None\n")
	}
	b.WriteString(`
If the user refines the previous question ("only plant US01", "restrict it", "show more") without naming
a different entity, reuse the last entity. Emit only the filters the user states now; active filters are
combined automatically.`)
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// interpreterCacheKey covers the query and the context that shapes its interpretation
func interpreterCacheKey(text string, s *model.SessionContext) string {
	h := sha256.New()
	h.Write([]byte(text))
	if s != nil {
		h.Write([]byte{0})
		h.Write([]byte(s.LastEntity))
		h.Write([]byte{0})
		h.Write([]byte(s.LastService))
	}
	return "openai:" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
