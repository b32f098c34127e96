// Package assistant answers a natural-language question end to end: schema, generation, execution.
package assistant

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/talk2db/talk2db/internal/nl2sql"
	"github.com/talk2db/talk2db/internal/observability"
	"github.com/talk2db/talk2db/internal/query"
	"github.com/talk2db/talk2db/internal/schema"
)

const noQuestionMessage = "No query provided"

// Outcome is the in-band result of a question. Error is nil on success.
type Outcome struct {
	SQLQuery    string          `json:"sql_query"`
	Results     query.ResultSet `json:"results"`
	Explanation string          `json:"explanation"`
	Error       *string         `json:"error"`
}

func failure(message string) Outcome {
	return Outcome{Error: &message}
}

type Pool interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

type SchemaDescriber interface {
	Describe(ctx context.Context, q schema.Queryer) (schema.Description, error)
}

type SQLGenerator interface {
	Generate(ctx context.Context, question string, description schema.Description) (nl2sql.GeneratedQuery, error)
}

type StatementExecutor interface {
	Execute(ctx context.Context, q query.Queryer, statement string) (query.ResultSet, error)
}

type Service struct {
	pool      Pool
	describer SchemaDescriber
	generator SQLGenerator
	executor  StatementExecutor
	logger    *slog.Logger
}

func NewService(pool Pool, describer SchemaDescriber, generator SQLGenerator, executor StatementExecutor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		pool:      pool,
		describer: describer,
		generator: generator,
		executor:  executor,
		logger:    logger,
	}
}

// Ask never returns an error or panics; every failure is reported in Outcome.Error.
func (s *Service) Ask(ctx context.Context, question string) (outcome Outcome) {
	question = strings.TrimSpace(question)
	if question == "" {
		return failure(noQuestionMessage)
	}
	traceID := observability.TraceAttr(ctx)

	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.ErrorContext(ctx, "question handling panicked", traceID, slog.Any("panic", recovered))
			outcome = failure(fmt.Sprintf("internal error: %v", recovered))
		}
	}()

	conn, err := s.pool.Conn(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "acquire database connection failed", traceID, slog.String("error", err.Error()))
		return failure(fmt.Sprintf("acquire database connection: %v", err))
	}
	defer func() { _ = conn.Close() }()

	description, err := s.describer.Describe(ctx, conn)
	if err != nil {
		s.logger.ErrorContext(ctx, "schema introspection failed", traceID, slog.String("error", err.Error()))
		return failure(err.Error())
	}

	generated, err := s.generator.Generate(ctx, question, description)
	if err != nil {
		s.logger.ErrorContext(ctx, "sql generation failed", traceID, slog.String("error", err.Error()))
		return failure(err.Error())
	}
	if generated.SQLQuery == "" {
		explanation := generated.Explanation
		if explanation == "" {
			explanation = nl2sql.FallbackExplanation
		}
		return Outcome{Explanation: explanation, Error: &explanation}
	}

	s.logger.DebugContext(ctx, "executing generated sql", traceID, slog.String("sql", generated.SQLQuery))
	result, err := s.executor.Execute(ctx, conn, generated.SQLQuery)
	if err != nil {
		return failure(err.Error())
	}

	s.logger.InfoContext(ctx, "question answered", traceID,
		slog.Int("tables", len(description)),
		slog.Int("rows", len(result.Rows)),
	)
	return Outcome{
		SQLQuery:    generated.SQLQuery,
		Results:     result,
		Explanation: generated.Explanation,
	}
}
