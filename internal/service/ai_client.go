package service

import (
	"context"

	"erpquery/internal/model"
)

// ChatCompleter is the interface for OpenAI-compatible chat providers
type ChatCompleter interface {
	// ChatCompletion performs a non-streaming completion
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)

	// IsEnabled returns whether the client is configured and ready
	IsEnabled() bool
}

// Interpreter turns free text into a structured command. A nil command
// with a nil error never happens: failures are reported as errors.
type Interpreter interface {
	Interpret(ctx context.Context, text string, session *model.SessionContext) (*model.Command, error)
}

// Fetcher reads one entity set of a remote service
type Fetcher interface {
	Fetch(ctx context.Context, service, entity string, filters []model.Filter) ([]model.Record, error)
}

// QueryLogger records processed queries for auditing
type QueryLogger interface {
	LogQuery(ctx context.Context, entry *model.QueryLogEntry) error
}

// QueryHistory reads back the audited queries of a session, newest first
type QueryHistory interface {
	RecentQueries(ctx context.Context, sessionID string, limit int) ([]model.QueryLogEntry, error)
}

// Ensure OpenAIClient implements ChatCompleter
var _ ChatCompleter = (*OpenAIClient)(nil)
