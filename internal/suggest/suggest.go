// Package suggest proposes follow-up questions, optionally steered by a business domain.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/talk2db/talk2db/internal/domain"
	"github.com/talk2db/talk2db/internal/llm"
	"github.com/talk2db/talk2db/internal/observability"
	"github.com/talk2db/talk2db/internal/prompt"
)

var fallbackSuggestions = []string{
	"What are the most recent records in the database?",
	"Which categories have the highest totals?",
	"How have the key figures changed over the last month?",
}

var errNoSuggestions = errors.New("model returned no suggestions")

// Fallback returns the static list used whenever the model cannot produce suggestions.
func Fallback() []string {
	out := make([]string, len(fallbackSuggestions))
	copy(out, fallbackSuggestions)
	return out
}

type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

type Generator struct {
	completer Completer
	catalog   *domain.Catalog
	logger    *slog.Logger
}

func NewGenerator(completer Completer, catalog *domain.Catalog, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{completer: completer, catalog: catalog, logger: logger}
}

// Suggest never fails; any problem yields the static fallback list.
func (g *Generator) Suggest(ctx context.Context, domainName string) []string {
	profile, ok := g.catalog.Lookup(domainName)
	var messages []llm.Message
	if ok {
		messages = prompt.SuggestionMessages(profile, profile.Examples())
	} else {
		messages = prompt.SuggestionMessages(nil, nil)
	}

	suggestions, err := g.suggest(ctx, messages)
	if err != nil {
		observability.IncrementSuggestionFallback()
		g.logger.WarnContext(ctx, "suggestions unavailable, using fallback",
			observability.TraceAttr(ctx),
			slog.String("domain", domainName),
			slog.String("error", err.Error()),
		)
		return Fallback()
	}
	return suggestions
}

func (g *Generator) suggest(ctx context.Context, messages []llm.Message) ([]string, error) {
	if g.completer == nil {
		return nil, errors.New("no completion client configured")
	}
	content, err := g.completer.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	return parseSuggestions(content)
}

func parseSuggestions(content string) ([]string, error) {
	var parsed struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(parsed.Suggestions))
	for _, suggestion := range parsed.Suggestions {
		if suggestion = strings.TrimSpace(suggestion); suggestion != "" {
			out = append(out, suggestion)
		}
	}
	if len(out) == 0 {
		return nil, errNoSuggestions
	}
	return out, nil
}
