// Package nl2sql turns a natural-language question into a SQL statement using a language model.
package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/talk2db/talk2db/internal/llm"
	"github.com/talk2db/talk2db/internal/observability"
	"github.com/talk2db/talk2db/internal/prompt"
	"github.com/talk2db/talk2db/internal/schema"
)

// FallbackExplanation is returned in place of a statement when the model output cannot be used.
const FallbackExplanation = "I could not generate a valid SQL query. Please try rephrasing your question."

// GeneratedQuery is the model's answer. An empty SQLQuery means generation failed and Explanation says why.
type GeneratedQuery struct {
	SQLQuery    string `json:"sql_query"`
	Explanation string `json:"explanation"`
}

// ParseGeneration never fails: output that is not a JSON object with string fields yields the fallback.
func ParseGeneration(cleaned string) GeneratedQuery {
	generated, ok := parseGeneration(cleaned)
	if !ok {
		return GeneratedQuery{Explanation: FallbackExplanation}
	}
	return generated
}

func parseGeneration(cleaned string) (GeneratedQuery, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil || fields == nil {
		return GeneratedQuery{}, false
	}
	sqlQuery, ok := stringField(fields, "sql_query")
	if !ok {
		return GeneratedQuery{}, false
	}
	explanation, ok := stringField(fields, "explanation")
	if !ok {
		return GeneratedQuery{}, false
	}
	return GeneratedQuery{SQLQuery: sqlQuery, Explanation: explanation}, true
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return "", true
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return strings.TrimSpace(value), true
}

type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Generator glues the prompt formatter, the completion client and the parser together.
type Generator struct {
	completer Completer
	dialect   string
	logger    *slog.Logger
}

func NewGenerator(completer Completer, dialect string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{completer: completer, dialect: dialect, logger: logger}
}

// Generate returns an error only when the completion call fails. Unusable output is a normal result.
func (g *Generator) Generate(ctx context.Context, question string, description schema.Description) (GeneratedQuery, error) {
	messages := prompt.GenerationMessages(question, prompt.FormatSchema(description), g.dialect)
	cleaned, err := g.completer.Complete(ctx, messages)
	if err != nil {
		return GeneratedQuery{}, fmt.Errorf("generate sql: %w", err)
	}

	generated, ok := parseGeneration(cleaned)
	if !ok || generated.SQLQuery == "" {
		observability.IncrementGenerationFallback()
		g.logger.WarnContext(ctx, "model output did not contain a usable statement",
			observability.TraceAttr(ctx),
			slog.Int("output_bytes", len(cleaned)),
		)
	}
	if !ok {
		return GeneratedQuery{Explanation: FallbackExplanation}, nil
	}
	return generated, nil
}
