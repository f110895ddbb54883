package llmprovider

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessagesClient struct {
	resp *sdk.Message
	err  error
	got  sdk.MessageNewParams
}

func (f *fakeMessagesClient) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	f.got = body
	return f.resp, f.err
}

func TestAnthropicProvider_Generate(t *testing.T) {
	fake := &fakeMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "the answer is 42"},
			},
			StopReason: sdk.StopReasonEndTurn,
			Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}
	p := &AnthropicProvider{msg: fake, defaultModel: "claude-test", maxTokens: 256}

	resp, err := p.Generate(context.Background(), &GenerateRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are a SQL assistant."},
			{Role: RoleUser, Content: "How many orders last week?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Len(t, fake.got.System, 1)
	assert.Len(t, fake.got.Messages, 1)
}

func TestAnthropicProvider_Generate_RequiresNonSystemMessage(t *testing.T) {
	p := &AnthropicProvider{msg: &fakeMessagesClient{}, defaultModel: "claude-test", maxTokens: 256}
	_, err := p.Generate(context.Background(), &GenerateRequest{
		Messages: []Message{{Role: RoleSystem, Content: "only system"}},
	})
	assert.Error(t, err)
}
