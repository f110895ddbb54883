package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/insightloop/core/pkg/agent/prompt"
	"github.com/insightloop/core/pkg/models"
)

type visualizeAgentOutput struct {
	ChartType string         `json:"chart_type"`
	Spec      map[string]any `json:"spec"`
	Insight   string         `json:"insight"`
}

// VisualizeAgent recommends a chart for a tabular result. It is a pure
// function of its inputs apart from the LLM call it makes.
type VisualizeAgent struct {
	runtime *Runtime
	builder *prompt.Builder
}

func NewVisualizeAgent(runtime *Runtime, builder *prompt.Builder) *VisualizeAgent {
	return &VisualizeAgent{runtime: runtime, builder: builder}
}

func (a *VisualizeAgent) Recommend(ctx context.Context, question string, columns []models.ColumnDescriptor, rowCount int) (*models.ChartSpec, error) {
	system := a.builder.VisualizeSystemPrompt()
	user := a.builder.VisualizeUserPrompt(question, columns, rowCount)

	msg, err := a.runtime.Invoke(ctx, "visualize_agent", system, user, nil)
	if err != nil {
		return nil, err
	}

	var out visualizeAgentOutput
	if err := json.Unmarshal([]byte(extractJSON(msg.Content)), &out); err != nil {
		return nil, fmt.Errorf("agent: visualize_agent: provider reply is not valid JSON: %w", err)
	}
	return &models.ChartSpec{ChartType: out.ChartType, Spec: out.Spec, Insight: out.Insight}, nil
}

// HasVisualizableShape reports whether a result has at least one
// categorical and one numeric column, the gate for recommending a chart.
func HasVisualizableShape(columns []models.ColumnDescriptor) bool {
	hasCategorical, hasNumeric := false, false
	for _, c := range columns {
		if isNumericType(c.Type) {
			hasNumeric = true
		} else {
			hasCategorical = true
		}
	}
	return hasCategorical && hasNumeric
}

func isNumericType(sqlType string) bool {
	switch strings.ToLower(sqlType) {
	case "int", "integer", "bigint", "smallint", "decimal", "numeric", "float", "double", "real":
		return true
	default:
		return false
	}
}
