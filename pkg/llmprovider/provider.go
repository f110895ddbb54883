// Package llmprovider defines the LanguageProvider capability the agent
// runtime invokes, and an Anthropic Messages-backed implementation of it.
package llmprovider

import "context"

// Role is a conversation message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation sent to a LanguageProvider.
type Message struct {
	Role    Role
	Content string
}

// ToolDefinition describes a tool the provider may call.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a provider's request to invoke one of the advertised tools.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// GenerateRequest is one call to a LanguageProvider.
type GenerateRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
}

// TokenUsage reports token consumption for one GenerateRequest.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// GenerateResponse is a LanguageProvider's reply to a GenerateRequest.
type GenerateResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      TokenUsage
}

// LanguageProvider is the capability the agent runtime invokes. It
// abstracts away the specific chat-completion transport (HTTP, gRPC, SDK)
// behind a single non-streaming request/response call; agent runtime code
// never imports a provider SDK directly.
type LanguageProvider interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	Close() error
}
