package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/talk2db/talk2db/internal/llm"
	"github.com/talk2db/talk2db/internal/schema"
)

func TestParseGenerationRecoversFields(t *testing.T) {
	tests := []struct {
		input string
		want  GeneratedQuery
	}{
		{
			input: `{"sql_query":"  SELECT 1  ","explanation":" one "}`,
			want:  GeneratedQuery{SQLQuery: "SELECT 1", Explanation: "one"},
		},
		{
			input: `{"sql_query":"SELECT 1"}`,
			want:  GeneratedQuery{SQLQuery: "SELECT 1"},
		},
		{
			input: `{"explanation":"nothing to run"}`,
			want:  GeneratedQuery{Explanation: "nothing to run"},
		},
		{
			input: `{"sql_query":null,"explanation":null,"extra":42}`,
			want:  GeneratedQuery{},
		},
		{
			input: `{}`,
			want:  GeneratedQuery{},
		},
	}
	for _, tc := range tests {
		if got := ParseGeneration(tc.input); got != tc.want {
			t.Fatalf("ParseGeneration(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
	}
}

func TestParseGenerationFallsBackOnMalformedOutput(t *testing.T) {
	for _, input := range []string{
		"",
		"SELECT * FROM employees",
		`{"sql_query": "SELECT 1"`,
		`["SELECT 1"]`,
		`"SELECT 1"`,
		`null`,
		`42`,
		`{"sql_query": 42, "explanation": "x"}`,
		`{"sql_query": "SELECT 1", "explanation": ["x"]}`,
	} {
		got := ParseGeneration(input)
		if got.SQLQuery != "" || got.Explanation != FallbackExplanation {
			t.Fatalf("ParseGeneration(%q) = %+v, want fallback", input, got)
		}
	}
}

type stubCompleter struct {
	content  string
	err      error
	messages []llm.Message
}

func (s *stubCompleter) Complete(_ context.Context, messages []llm.Message) (string, error) {
	s.messages = messages
	return s.content, s.err
}

func TestGenerateBuildsPromptAndParses(t *testing.T) {
	completer := &stubCompleter{content: `{"sql_query":"SELECT name FROM employees ORDER BY salary DESC LIMIT 5","explanation":"Top five"}`}
	generator := NewGenerator(completer, "PostgreSQL", nil)

	got, err := generator.Generate(context.Background(), "Show me the top 5 highest paid employees", schema.Description{
		"employees": {{Name: "name", Type: "text"}, {Name: "salary", Type: "numeric"}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.SQLQuery != "SELECT name FROM employees ORDER BY salary DESC LIMIT 5" || got.Explanation != "Top five" {
		t.Fatalf("Generate() = %+v", got)
	}
	if len(completer.messages) != 2 {
		t.Fatalf("messages = %d", len(completer.messages))
	}
	user := completer.messages[1].Content
	if !strings.Contains(user, "- salary (numeric)") || !strings.Contains(user, `"Show me the top 5 highest paid employees"`) {
		t.Fatalf("user prompt = %s", user)
	}
}

func TestGenerateReturnsFallbackForUnparseableOutput(t *testing.T) {
	generator := NewGenerator(&stubCompleter{content: "Sorry, I cannot help with that."}, "PostgreSQL", nil)
	got, err := generator.Generate(context.Background(), "q", schema.Description{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.SQLQuery != "" || got.Explanation != FallbackExplanation {
		t.Fatalf("Generate() = %+v", got)
	}
}

func TestGeneratePropagatesCompletionErrors(t *testing.T) {
	cause := &llm.CompletionError{Attempts: 3, Err: &llm.RateLimitError{Status: 429}}
	generator := NewGenerator(&stubCompleter{err: cause}, "PostgreSQL", nil)
	_, err := generator.Generate(context.Background(), "q", schema.Description{})
	var completionErr *llm.CompletionError
	if !errors.As(err, &completionErr) {
		t.Fatalf("Generate() error = %v, want CompletionError", err)
	}
}
