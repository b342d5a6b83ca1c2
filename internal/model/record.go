package model

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Record is one row returned by a remote entity set
type Record = map[string]any

// ResolvedEntity is a (service, entity) candidate produced by the resolver
type ResolvedEntity struct {
	ServiceName  string  `json:"serviceName"`
	EntityName   string  `json:"entityName"`
	ServiceTitle string  `json:"serviceTitle"`
	Score        float64 `json:"score"`
}

// SessionContext is the per-conversation state carried between queries
type SessionContext struct {
	LastEntity    string            `json:"lastEntity,omitempty"`
	LastService   string            `json:"lastService,omitempty"`
	LastFields    []string          `json:"lastFields,omitempty"`
	ActiveFilters map[string]string `json:"activeFilters"`
	LastAccess    time.Time         `json:"lastAccess"`
}

// Clone returns a deep copy
func (s *SessionContext) Clone() *SessionContext {
	cp := *s
	cp.LastFields = append([]string(nil), s.LastFields...)
	cp.ActiveFilters = make(map[string]string, len(s.ActiveFilters))
	for k, v := range s.ActiveFilters {
		cp.ActiveFilters[k] = v
	}
	return &cp
}

// FieldNames returns the sorted keys of the first record, skipping OData
// bookkeeping keys such as __metadata.
func FieldNames(records []Record) []string {
	if len(records) == 0 {
		return []string{}
	}
	fields := make([]string, 0, len(records[0]))
	for k := range records[0] {
		if strings.HasPrefix(k, "_") {
			continue
		}
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// QueryLogEntry is one audited query
type QueryLogEntry struct {
	ID             string    `db:"id" json:"id"`
	SessionID      string    `db:"session_id" json:"sessionId"`
	Query          string    `db:"query" json:"query"`
	Command        string    `db:"command" json:"command"`
	ServiceName    string    `db:"service_name" json:"serviceName"`
	EntityName     string    `db:"entity_name" json:"entityName"`
	Filters        JSONMap   `db:"filters" json:"filters"`
	Success        bool      `db:"success" json:"success"`
	ErrorCode      string    `db:"error_code" json:"errorCode"`
	RecordCount    int       `db:"record_count" json:"recordCount"`
	ResponseTimeMs int       `db:"response_time_ms" json:"responseTimeMs"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// JSONMap represents a JSON object column
type JSONMap map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported type %T for JSONMap", value)
	}
}

// JSONMapFromStrings converts a filter map for storage
func JSONMapFromStrings(m map[string]string) JSONMap {
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
