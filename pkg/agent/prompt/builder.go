// Package prompt builds the system/user prompt text for every specialist
// agent. Stateless — all state comes from parameters — and thread-safe.
package prompt

import (
	"fmt"
	"strings"

	"github.com/insightloop/core/pkg/models"
)

const separator = "----------------------------------------"

// Builder composes prompt text for SchemaAgent, SqlAgent, and
// VisualizeAgent calls.
type Builder struct{}

// NewBuilder constructs a Builder. It carries no state today but is kept
// as a type (rather than package functions) so a future per-dialect or
// per-locale prompt variant can be threaded through without changing call
// sites.
func NewBuilder() *Builder { return &Builder{} }

// SchemaSystemPrompt is the system message for SchemaAgent calls.
func (b *Builder) SchemaSystemPrompt() string {
	return "You are a database schema analyst. Given a question and a full " +
		"schema, select only the tables plausibly relevant to answering it. " +
		"Respond with a JSON list of table names, most relevant first."
}

// SchemaUserPrompt composes the user message for a SchemaAgent call.
func (b *Builder) SchemaUserPrompt(question string, schema *models.SchemaDescriptor) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Question:** %s\n\n", question))
	sb.WriteString(separator + "\n")
	sb.WriteString("## Full schema\n")
	sb.WriteString(separator + "\n")
	for _, t := range schema.Tables {
		sb.WriteString(fmt.Sprintf("- %s(%s)\n", t.Name, strings.Join(columnNames(t.Columns), ", ")))
	}
	return sb.String()
}

// SqlSystemPrompt is the system message for SqlAgent calls.
func (b *Builder) SqlSystemPrompt(dialect string) string {
	return fmt.Sprintf(
		"You are a SQL analyst writing %s SQL against the schema you are given. "+
			"If the question lacks a metric, a time window, or names an ambiguous "+
			"entity, respond with intent=clarification and up to 4 options instead "+
			"of guessing. Otherwise respond with intent=answer, the SQL, and "+
			"should_visualize.", dialect)
}

// SqlUserPrompt composes the user message for a SqlAgent call, including an
// optional correction round when previousSQL/engineError are non-empty.
func (b *Builder) SqlUserPrompt(question string, schema *models.SchemaDescriptor, history, memoryContext, previousSQL, engineError string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Question:** %s\n\n", question))
	sb.WriteString(separator + "\n## Relevant schema\n" + separator + "\n")
	for _, t := range schema.Tables {
		sb.WriteString(fmt.Sprintf("- %s(%s)\n", t.Name, strings.Join(columnNames(t.Columns), ", ")))
	}
	if history != "" {
		sb.WriteString("\n" + separator + "\n## Conversation history\n" + separator + "\n")
		sb.WriteString(history + "\n")
	}
	if memoryContext != "" {
		sb.WriteString("\n" + separator + "\n## Memory context\n" + separator + "\n")
		sb.WriteString(memoryContext + "\n")
	}
	if previousSQL != "" {
		sb.WriteString("\n" + separator + "\n## Previous attempt failed\n" + separator + "\n")
		sb.WriteString(fmt.Sprintf("Previous SQL:\n%s\n\nEngine error:\n%s\n\nCorrect it.\n", previousSQL, engineError))
	}
	return sb.String()
}

// VisualizeSystemPrompt is the system message for VisualizeAgent calls.
func (b *Builder) VisualizeSystemPrompt() string {
	return "You are a chart recommendation engine. Given tabular columns and " +
		"rows, choose a chart_type and a rendering spec, and optionally a " +
		"one-sentence insight. You receive no tools and make no calls beyond " +
		"this one."
}

// VisualizeUserPrompt composes the user message for a VisualizeAgent call.
func (b *Builder) VisualizeUserPrompt(question string, columns []models.ColumnDescriptor, rowCount int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Question:** %s\n\n", question))
	sb.WriteString(fmt.Sprintf("**Columns:** %s\n", strings.Join(columnNames(columns), ", ")))
	sb.WriteString(fmt.Sprintf("**Row count:** %d\n", rowCount))
	return sb.String()
}

func columnNames(cols []models.ColumnDescriptor) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
