package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"erpquery/internal/apperrors"
	"erpquery/internal/catalog"
	"erpquery/internal/model"
	"erpquery/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubInterpreter struct{}

func (stubInterpreter) Interpret(_ context.Context, text string, _ *model.SessionContext) (*model.Command, error) {
	if text == "show me customer 90000" {
		return &model.Command{
			Kind:       model.CommandClarifyService,
			EntityName: "Customer",
			Filters:    map[string]string{"BusinessPartner": "90000"},
		}, nil
	}
	return nil, apperrors.New(apperrors.ErrCodeInterpretation, "unknown")
}

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string, string, []model.Filter) ([]model.Record, error) {
	return []model.Record{{"Customer": "90000", "CustomerName": "IML"}}, nil
}

type stubHistory struct {
	entries []model.QueryLogEntry
	err     error
	limits  []int
}

func (h *stubHistory) RecentQueries(_ context.Context, sessionID string, limit int) ([]model.QueryLogEntry, error) {
	h.limits = append(h.limits, limit)
	if h.err != nil {
		return nil, h.err
	}
	var out []model.QueryLogEntry
	for _, e := range h.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *service.SessionStore) {
	t.Helper()
	return newTestRouterWithHistory(t, nil)
}

func newTestRouterWithHistory(t *testing.T, history service.QueryHistory) (*gin.Engine, *service.SessionStore) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	sessions := service.NewSessionStore(30*time.Minute, log)
	qs := service.NewQueryService(cat, stubInterpreter{}, stubFetcher{}, sessions, log)

	r := gin.New()
	r.Use(RequestID())
	qh := NewQueryHandler(qs, log)
	r.POST("/api/v1/query", qh.Query)
	r.GET("/api/v1/services", NewCatalogHandler(cat).Services)
	sh := NewSessionHandler(sessions, history, log)
	r.GET("/api/v1/session/:id", sh.Get)
	r.DELETE("/api/v1/session/:id", sh.Delete)
	r.GET("/api/v1/session/:id/history", sh.History)
	r.GET("/api/v1/diagnostics/entities", NewDiagnosticsHandler(qs).Entities)
	return r, sessions
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestQueryHandler(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/query", `{"query":"show me customer 90000","sessionId":"abc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	var resp model.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "A_Customer", resp.Entity)
	assert.Equal(t, 1, resp.RecordCount)
	assert.Equal(t, "abc", resp.SessionID)
}

func TestQueryHandler_BusinessFailureIsOK(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/query", `{"query":"blah"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to interpret query. Please try rephrasing.", resp.Summary)
	assert.Equal(t, []model.Record{}, resp.Data)
}

func TestQueryHandler_BadRequest(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, body := range []string{``, `{}`, `{"query":"   "}`, `{"query":42}`, `not json`} {
		w := doJSON(r, http.MethodPost, "/api/v1/query", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), msgQueryRequired, body)
	}
}

func TestSessionHandler(t *testing.T) {
	r, sessions := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/session/none", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	doJSON(r, http.MethodPost, "/api/v1/query", `{"query":"show me customer 90000","sessionId":"s1"}`)

	w = doJSON(r, http.MethodGet, "/api/v1/session/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Context model.SessionContext `json:"context"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "A_Customer", body.Context.LastEntity)
	assert.Equal(t, "90000", body.Context.ActiveFilters["BusinessPartner"])

	w = doJSON(r, http.MethodDelete, "/api/v1/session/s1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, sessions.Len())

	w = doJSON(r, http.MethodDelete, "/api/v1/session/s1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogHandler(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/services", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Services []serviceInfo `json:"services"`
		Total    int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, len(body.Services), body.Total)

	var returns *serviceInfo
	for i := range body.Services {
		if body.Services[i].Name == "API_CUSTOMER_RETURNS_DELIVERY_SRV" {
			returns = &body.Services[i]
		}
	}
	require.NotNil(t, returns)
	assert.True(t, returns.ParameterBased)
	assert.Equal(t, []string{"CustomerID"}, returns.MandatoryFilters)
}

func TestSessionHandler_History(t *testing.T) {
	history := &stubHistory{entries: []model.QueryLogEntry{
		{ID: "2", SessionID: "s1", Query: "show me customer 90000", Success: true, RecordCount: 1},
		{ID: "1", SessionID: "s1", Query: "blah", ErrorCode: "INTERPRETATION_FAILURE"},
		{ID: "3", SessionID: "other", Query: "x"},
	}}
	r, _ := newTestRouterWithHistory(t, history)

	w := doJSON(r, http.MethodGet, "/api/v1/session/s1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		SessionID string                `json:"sessionId"`
		History   []model.QueryLogEntry `json:"history"`
		Total     int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "s1", body.SessionID)
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.History, 2)
	assert.Equal(t, "show me customer 90000", body.History[0].Query)
	assert.Equal(t, "INTERPRETATION_FAILURE", body.History[1].ErrorCode)

	w = doJSON(r, http.MethodGet, "/api/v1/session/nobody/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"history":[]`)

	doJSON(r, http.MethodGet, "/api/v1/session/s1/history?limit=5", "")
	doJSON(r, http.MethodGet, "/api/v1/session/s1/history?limit=1000", "")
	assert.Equal(t, []int{defaultHistoryLimit, defaultHistoryLimit, 5, maxHistoryLimit}, history.limits)

	for _, bad := range []string{"0", "-3", "ten"} {
		w = doJSON(r, http.MethodGet, "/api/v1/session/s1/history?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestSessionHandler_HistoryErrors(t *testing.T) {
	r, _ := newTestRouterWithHistory(t, &stubHistory{err: errors.New("connection reset")})
	w := doJSON(r, http.MethodGet, "/api/v1/session/s1/history", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")

	r, _ = newTestRouter(t)
	w = doJSON(r, http.MethodGet, "/api/v1/session/s1/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDiagnosticsHandler(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/diagnostics/entities", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success  bool                   `json:"success"`
		Message  string                 `json:"message"`
		Results  []service.EntityCheck  `json:"results"`
		Services []service.ServiceCheck `json:"services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Entity test completed", body.Message)
	require.NotEmpty(t, body.Results)
	for _, res := range body.Results {
		assert.Equal(t, 1, res.RecordCount, res.EntityName)
		assert.True(t, res.HasData, res.EntityName)
	}
	require.NotEmpty(t, body.Services)
	assert.True(t, body.Services[0].Reachable)
}
