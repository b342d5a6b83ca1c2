package model

// QueryRequest is the body of POST /api/v1/query
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId,omitempty"`
}

// QueryResponse is returned for every processed query. Business failures
// (nothing resolved, missing parameters, remote errors) set Success=false
// and are still delivered with HTTP 200.
type QueryResponse struct {
	Success            bool     `json:"success"`
	Summary            string   `json:"summary"`
	Data               []Record `json:"data"`
	Fields             []string `json:"fields"`
	Entity             string   `json:"entity"`
	ServiceName        string   `json:"serviceName,omitempty"`
	RecordCount        int      `json:"recordCount"`
	Error              string   `json:"error,omitempty"`
	RequiresParameters bool     `json:"requiresParameters,omitempty"`
	MandatoryFilters   []string `json:"mandatoryFilters,omitempty"`
	MissingFilters     []string `json:"missingFilters,omitempty"`
	ExampleQuery       string   `json:"exampleQuery,omitempty"`
	Incomplete         bool     `json:"incomplete,omitempty"`
	SessionID          string   `json:"sessionId"`
}

// NewFailure builds a success=false response with empty data.
func NewFailure(summary, errText, sessionID string) *QueryResponse {
	return &QueryResponse{
		Success:   false,
		Summary:   summary,
		Data:      []Record{},
		Fields:    []string{},
		Error:     errText,
		SessionID: sessionID,
	}
}
