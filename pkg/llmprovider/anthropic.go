package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// messagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a fake without a live API key.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicProvider implements LanguageProvider on top of the Anthropic
// Claude Messages API.
type AnthropicProvider struct {
	msg          messagesClient
	defaultModel string
	maxTokens    int
	temperature  float64
}

// NewAnthropicProvider builds a provider using the default Anthropic HTTP
// client, reading the API key the caller resolved from config/environment.
func NewAnthropicProvider(apiKey, defaultModel string, maxTokens int, temperature float64) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("llmprovider: anthropic api key is required")
	}
	if defaultModel == "" {
		return nil, errors.New("llmprovider: default model is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{
		msg:          &client.Messages,
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
		temperature:  temperature,
	}, nil
}

func (p *AnthropicProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := p.msg.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("llmprovider: anthropic messages.new: %w", err)
	}
	return translateMessage(msg), nil
}

func (p *AnthropicProvider) Close() error { return nil }

func (p *AnthropicProvider) buildParams(req *GenerateRequest) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("llmprovider: at least one message is required")
	}
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens <= 0 {
		return nil, errors.New("llmprovider: max_tokens must be positive")
	}

	var system []sdk.TextBlockParam
	conversation := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return nil, fmt.Errorf("llmprovider: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("llmprovider: at least one user/assistant message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	temp := req.Temperature
	if temp == 0 {
		temp = p.temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	return &params, nil
}

func encodeTools(defs []ToolDefinition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		schema := sdk.ToolInputSchemaParam{ExtraFields: def.InputSchema}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func translateMessage(msg *sdk.Message) *GenerateResponse {
	resp := &GenerateResponse{StopReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			var args map[string]any
			if raw, err := json.Marshal(block.Input); err == nil {
				_ = json.Unmarshal(raw, &args)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	resp.Usage = TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return resp
}
