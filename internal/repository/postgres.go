package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"erpquery/internal/model"
)

const createQueryLogs = `
	CREATE TABLE IF NOT EXISTS query_logs (
		id               UUID PRIMARY KEY,
		session_id       TEXT NOT NULL,
		query            TEXT NOT NULL,
		command          TEXT NOT NULL DEFAULT '',
		service_name     TEXT NOT NULL DEFAULT '',
		entity_name      TEXT NOT NULL DEFAULT '',
		filters          JSONB,
		success          BOOLEAN NOT NULL,
		error_code       TEXT NOT NULL DEFAULT '',
		record_count     INTEGER NOT NULL DEFAULT 0,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// QueryLogRepository stores an audit trail of processed queries
type QueryLogRepository struct {
	db *sqlx.DB
}

// NewQueryLogRepository connects to PostgreSQL
func NewQueryLogRepository(dsn string, maxConn, maxIdleConn int) (*QueryLogRepository, error) {
	// Disable prepared statement caching to avoid "unnamed prepared statement does not exist" errors
	if !strings.Contains(dsn, "?") {
		dsn += "?prefer_simple_protocol=true"
	} else {
		dsn += "&prefer_simple_protocol=true"
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	return NewQueryLogRepositoryFromDB(db), nil
}

// NewQueryLogRepositoryFromDB wraps an open connection
func NewQueryLogRepositoryFromDB(db *sqlx.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

// Close closes the database connection
func (r *QueryLogRepository) Close() error {
	return r.db.Close()
}

// Migrate creates the query_logs table when missing
func (r *QueryLogRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createQueryLogs); err != nil {
		return fmt.Errorf("failed to create query_logs: %w", err)
	}
	return nil
}

// LogQuery inserts one audit entry
func (r *QueryLogRepository) LogQuery(ctx context.Context, entry *model.QueryLogEntry) error {
	query := `
		INSERT INTO query_logs (id, session_id, query, command, service_name, entity_name, filters,
			success, error_code, record_count, response_time_ms, created_at)
		VALUES (:id, :session_id, :query, :command, :service_name, :entity_name, :filters,
			:success, :error_code, :record_count, :response_time_ms, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to log query: %w", err)
	}
	return nil
}

// RecentQueries returns the latest entries of a session, newest first
func (r *QueryLogRepository) RecentQueries(ctx context.Context, sessionID string, limit int) ([]model.QueryLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, session_id, query, command, service_name, entity_name, filters,
			success, error_code, record_count, response_time_ms, created_at
		FROM query_logs
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var entries []model.QueryLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to load query history: %w", err)
	}
	return entries, nil
}
