package models

// Scene is a named operating context that binds scene-specific defaults
// and an LLM binding (dashboard, data_discuss, loan_ops, ...).
type Scene string

const (
	SceneDashboard   Scene = "dashboard"
	SceneDataDiscuss Scene = "data_discuss"
	SceneLoanOps     Scene = "loan_ops"
)

// AnalysisRequest is the input to Pipeline.Analyze.
type AnalysisRequest struct {
	Question       string `json:"question"`
	DatasourceID   string `json:"datasource_id"`
	Scene          Scene  `json:"scene"`
	LLMBindingID   string `json:"llm_binding_id,omitempty"`
	AgentProfileID string `json:"agent_profile_id,omitempty"`
	Visualize      bool   `json:"visualize"`
}

// Clarification is returned when the question is under-specified.
type Clarification struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// ChartSpec is the opaque visualization payload the VisualizeAgent produces.
type ChartSpec struct {
	ChartType string         `json:"chart_type"`
	Spec      map[string]any `json:"spec"`
	Insight   string         `json:"insight,omitempty"`
}

// CorrectionAttempt records one iteration of the correction loop.
type CorrectionAttempt struct {
	Attempt     int    `json:"attempt"`
	SQL         string `json:"sql"`
	EngineError string `json:"engine_error"`
}

// AnalysisResult is the output of Pipeline.Analyze.
//
// Invariant: Intent == IntentAnswer implies SQL != "" and Rows != nil.
// Invariant: Intent == IntentClarification implies Clarification != nil and SQL == "".
type AnalysisResult struct {
	Intent        Intent              `json:"intent"`
	SQL           string              `json:"sql,omitempty"`
	Columns       []ColumnDescriptor  `json:"columns,omitempty"`
	Rows          [][]any             `json:"rows,omitempty"`
	RowCount      int                 `json:"row_count"`
	Truncated     bool                `json:"truncated"`
	DurationMS    int64               `json:"duration_ms"`
	Chart         *ChartSpec          `json:"chart,omitempty"`
	Clarification *Clarification      `json:"clarification,omitempty"`
	Attempts      int                 `json:"attempts"`
	Corrections   []CorrectionAttempt `json:"correction_logs,omitempty"`
	Errors        []string            `json:"errors,omitempty"`
}

// QueryRecord is an append-only record of one executed query.
type QueryRecord struct {
	ID           string `json:"id"`
	DatasourceID string `json:"datasource_id"`
	SQL          string `json:"sql"`
	ExecutedAt   string `json:"executed_at"`
	DurationMS   int64  `json:"duration_ms"`
	RowCount     int    `json:"row_count"`
	Status       string `json:"status"` // success | error
	ErrorMessage string `json:"error,omitempty"`
}
