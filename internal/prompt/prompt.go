// Package prompt renders schema descriptions, questions and domain profiles into model prompts.
// Every function here is pure: the same input always yields the same text.
package prompt

import (
	"fmt"
	"strings"

	"github.com/talk2db/talk2db/internal/domain"
	"github.com/talk2db/talk2db/internal/llm"
	"github.com/talk2db/talk2db/internal/schema"
)

const (
	GenerationSystemPrompt = "You are an expert SQL assistant."
	SuggestionSystemPrompt = "You are an expert data assistant."
)

// FormatSchema renders one "Table: <name>" block per table, in name order, with a "- <column> (<type>)" line
// per column and a blank line after each block.
func FormatSchema(d schema.Description) string {
	lines := make([]string, 0, len(d)*4)
	for _, table := range d.Tables() {
		lines = append(lines, "Table: "+table)
		for _, column := range d[table] {
			lines = append(lines, fmt.Sprintf("- %s (%s)", column.Name, column.Type))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// BuildGeneration embeds the question verbatim; the model is expected to treat it as data.
func BuildGeneration(question, schemaText, dialect string) string {
	var b strings.Builder
	b.WriteString("You are a data analyst AI assistant. Given the following schema:\n")
	b.WriteString(schemaText)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Generate a SQL query (%s) that answers this natural language question:\n", dialect)
	b.WriteString("\"" + question + "\"\n")
	b.WriteString("If a column name appears in more than one table, qualify every column reference with its table alias.\n")
	b.WriteString("Format your response as a JSON object with exactly two string fields, like this:\n")
	b.WriteString("{\n    \"sql_query\": \"...\",\n    \"explanation\": \"...\"\n}\n")
	return b.String()
}

func GenerationMessages(question, schemaText, dialect string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: GenerationSystemPrompt},
		{Role: llm.RoleUser, Content: BuildGeneration(question, schemaText, dialect)},
	}
}

// BuildSuggestions asks for three generic questions when profile is nil, and for three to five questions in
// the style of the profile's examples otherwise.
func BuildSuggestions(profile *domain.Profile, examples []string) string {
	var b strings.Builder
	if profile == nil {
		b.WriteString("Suggest 3 general analytical questions a user could ask about the data in a SQL database.\n")
		b.WriteString("Format as JSON:\n{\n    \"suggestions\": [\"...\", \"...\", \"...\"]\n}\n")
		return b.String()
	}

	fmt.Fprintf(&b, "The user is exploring the %s domain.\n", profile.Name)
	fmt.Fprintf(&b, "Available tables: %s.\n", strings.Join(profile.TableNames(), ", "))
	if len(profile.KeyMetrics) > 0 {
		fmt.Fprintf(&b, "Key metrics: %s.\n", strings.Join(profile.KeyMetrics, ", "))
	}
	if len(examples) > 0 {
		b.WriteString("Questions users typically ask in this domain:\n")
		for _, example := range examples {
			b.WriteString(example)
			b.WriteString("\n")
		}
	}
	b.WriteString("Suggest 3 to 5 new analytical questions consistent with these examples.\n")
	b.WriteString("Format as JSON:\n{\n    \"suggestions\": [\"...\", \"...\", \"...\"]\n}\n")
	return b.String()
}

func SuggestionMessages(profile *domain.Profile, examples []string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: SuggestionSystemPrompt},
		{Role: llm.RoleUser, Content: BuildSuggestions(profile, examples)},
	}
}
