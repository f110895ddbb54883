package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/insightloop/core/pkg/agent/prompt"
	"github.com/insightloop/core/pkg/llmprovider"
	"github.com/insightloop/core/pkg/models"
)

// SqlDraft is SqlAgent's output: either a SQL draft or a clarification
// request, never both.
type SqlDraft struct {
	Intent          models.Intent
	SQL             string
	ShouldVisualize bool
	Clarification   *models.Clarification
}

// sqlAgentOutput is the permissive JSON shape SqlAgent asks the provider to
// reply with; unknown extra fields are ignored rather than rejected.
type sqlAgentOutput struct {
	Intent          string   `json:"intent"`
	SQL             string   `json:"sql"`
	ShouldVisualize bool     `json:"should_visualize"`
	Question        string   `json:"question"`
	Options         []string `json:"options"`
}

// SqlAgent turns a question plus a ranked schema into a SQL draft, or a
// clarification request when the question is under-specified.
type SqlAgent struct {
	runtime *Runtime
	builder *prompt.Builder
}

func NewSqlAgent(runtime *Runtime, builder *prompt.Builder) *SqlAgent {
	return &SqlAgent{runtime: runtime, builder: builder}
}

// Draft calls the bound LanguageProvider for a SQL draft. previousSQL and
// engineError are non-empty only on a correction-loop retry.
func (a *SqlAgent) Draft(ctx context.Context, question string, schema *models.SchemaDescriptor, dialect, history, memoryContext, previousSQL, engineError string) (*SqlDraft, error) {
	system := a.builder.SqlSystemPrompt(dialect)
	user := a.builder.SqlUserPrompt(question, schema, history, memoryContext, previousSQL, engineError)

	msg, err := a.runtime.Invoke(ctx, "sql_agent", system, user, []llmprovider.ToolDefinition{{Name: "sql_tool"}})
	if err != nil {
		return nil, err
	}

	var out sqlAgentOutput
	if err := json.Unmarshal([]byte(extractJSON(msg.Content)), &out); err != nil {
		return nil, fmt.Errorf("agent: sql_agent: provider reply is not valid JSON: %w", err)
	}

	if models.Intent(out.Intent) == models.IntentClarification {
		opts := out.Options
		if len(opts) > 4 {
			opts = opts[:4]
		}
		return &SqlDraft{
			Intent:        models.IntentClarification,
			Clarification: &models.Clarification{Question: out.Question, Options: opts},
		}, nil
	}

	if strings.TrimSpace(out.SQL) == "" {
		return nil, fmt.Errorf("agent: sql_agent: empty SQL in answer intent reply")
	}
	return &SqlDraft{Intent: models.IntentAnswer, SQL: out.SQL, ShouldVisualize: out.ShouldVisualize}, nil
}

// extractJSON trims Markdown code-fence wrapping a provider commonly adds
// around its JSON reply despite being asked for raw JSON.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
