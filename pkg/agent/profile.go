package agent

// FeatureMask enables or disables per-call capabilities for a profile:
// the SQL tool, the RAG tool, and rule validation.
type FeatureMask struct {
	SQLTool        bool
	RAGTool        bool
	RuleValidation bool
}

// Profile binds an agent persona to a LanguageProvider and a feature mask.
// AgentProfile records are loaded from config and may be swapped per scene.
type Profile struct {
	ID           string
	Name         string
	LLMBindingID string
	Features     FeatureMask
}
