// Package agent implements the agent runtime — a thin layer that
// invokes a bound LanguageProvider, renders prompts, and turns a provider
// reply into a structured AgentMessage — plus the three specialist agents
// built on top of it.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/insightloop/core/pkg/llmprovider"
	"github.com/insightloop/core/pkg/models"
)

// LogSink receives one ExecutionLogRecord per runtime call. A pluggable
// sink rather than a hardwired database write, so tests and database-less
// deployments can substitute their own.
type LogSink interface {
	Record(ctx context.Context, rec models.ExecutionLogRecord)
}

// NopLogSink discards records; used by callers that don't need execution
// logs (e.g. unit tests).
type NopLogSink struct{}

func (NopLogSink) Record(context.Context, models.ExecutionLogRecord) {}

// Runtime invokes a bound LanguageProvider on behalf of a Profile, and logs
// one ExecutionLogRecord per call.
type Runtime struct {
	provider llmprovider.LanguageProvider
	profile  Profile
	sink     LogSink
	logger   *slog.Logger
}

// NewRuntime builds a Runtime bound to one LanguageProvider and Profile. A
// nil sink defaults to NopLogSink; a nil logger defaults to slog.Default().
func NewRuntime(provider llmprovider.LanguageProvider, profile Profile, sink LogSink, logger *slog.Logger) *Runtime {
	if sink == nil {
		sink = NopLogSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{provider: provider, profile: profile, sink: sink, logger: logger}
}

// Invoke renders system/user prompts, calls the bound LanguageProvider, and
// returns the reply as an AgentMessage. step identifies the calling
// specialist agent (e.g. "schema_agent") for the emitted log record.
func (r *Runtime) Invoke(ctx context.Context, step, system, user string, tools []llmprovider.ToolDefinition) (*models.AgentMessage, error) {
	start := time.Now()

	req := &llmprovider.GenerateRequest{
		Messages: []llmprovider.Message{
			{Role: llmprovider.RoleSystem, Content: system},
			{Role: llmprovider.RoleUser, Content: user},
		},
		Tools: r.allowedTools(tools),
	}

	resp, err := r.provider.Generate(ctx, req)
	if err != nil {
		r.emit(ctx, step, "failed", err.Error())
		return nil, err
	}

	msg := &models.AgentMessage{
		Role:      models.RoleAssistant,
		Content:   resp.Content,
		Intent:    models.IntentAnswer,
		Metadata:  map[string]any{"stop_reason": resp.StopReason, "total_tokens": resp.Usage.TotalTokens},
		EmittedAt: time.Now(),
	}

	r.logger.DebugContext(ctx, "agent runtime invoke", "profile_id", r.profile.ID, "step", step, "duration_ms", time.Since(start).Milliseconds())
	r.emit(ctx, step, "completed", "")
	return msg, nil
}

// allowedTools filters the caller's requested tools down to what the
// profile's FeatureMask permits. A tool not named "sql_tool"/"rag_tool" is
// passed through unfiltered — the mask only governs the two named
// capabilities a profile can toggle.
func (r *Runtime) allowedTools(tools []llmprovider.ToolDefinition) []llmprovider.ToolDefinition {
	out := make([]llmprovider.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		switch t.Name {
		case "sql_tool":
			if !r.profile.Features.SQLTool {
				continue
			}
		case "rag_tool":
			if !r.profile.Features.RAGTool {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func (r *Runtime) emit(ctx context.Context, step, status, detail string) {
	r.sink.Record(ctx, models.ExecutionLogRecord{
		ProfileID: r.profile.ID,
		Step:      step,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}
