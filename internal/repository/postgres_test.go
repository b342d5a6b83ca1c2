package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpquery/internal/model"
)

func newMockRepo(t *testing.T) (*QueryLogRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewQueryLogRepositoryFromDB(sqlx.NewDb(db, "sqlmock")), mock
}

func TestQueryLogRepository_Migrate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS query_logs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryLogRepository_LogQuery(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entry := &model.QueryLogEntry{
		ID:             "7f1c0c2e-5d0b-4a57-9c1e-0c6a3b1f2d11",
		SessionID:      "s1",
		Query:          "show me customer 90000",
		Command:        "clarify_service",
		ServiceName:    "API_BUSINESS_PARTNER",
		EntityName:     "A_Customer",
		Filters:        model.JSONMap{"Customer": "90000"},
		Success:        true,
		RecordCount:    1,
		ResponseTimeMs: 42,
		CreatedAt:      created,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO query_logs")).
		WithArgs(entry.ID, "s1", entry.Query, "clarify_service", "API_BUSINESS_PARTNER", "A_Customer",
			sqlmock.AnyArg(), true, "", 1, 42, created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.LogQuery(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryLogRepository_LogQueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO query_logs")).
		WillReturnError(errors.New("connection reset"))

	err := repo.LogQuery(context.Background(), &model.QueryLogEntry{ID: "x", SessionID: "s1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestQueryLogRepository_RecentQueries(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "session_id", "query", "command", "service_name", "entity_name", "filters",
		"success", "error_code", "record_count", "response_time_ms", "created_at",
	}).
		AddRow("b", "s1", "total amount", "get_entity_aggregation", "API_GLACCOUNTLINEITEM",
			"GLAccountLineItem", []byte(`{"GLAccount":"400000"}`), true, "", 1, 80, created.Add(time.Minute)).
		AddRow("a", "s1", "bogus", "", "", "", nil, false, "INTERPRETATION_FAILURE", 0, 5, created)

	mock.ExpectQuery(regexp.QuoteMeta("FROM query_logs")).
		WithArgs("s1", 20).
		WillReturnRows(rows)

	entries, err := repo.RecentQueries(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "400000", entries[0].Filters["GLAccount"])
	assert.False(t, entries[1].Success)
	assert.Nil(t, entries[1].Filters)
	assert.NoError(t, mock.ExpectationsWereMet())
}
