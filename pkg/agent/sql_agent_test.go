package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/core/pkg/agent/prompt"
	"github.com/insightloop/core/pkg/llmprovider"
	"github.com/insightloop/core/pkg/models"
)

type fakeProvider struct {
	reply string
	err   error
}

func (f *fakeProvider) Generate(ctx context.Context, req *llmprovider.GenerateRequest) (*llmprovider.GenerateResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llmprovider.GenerateResponse{Content: f.reply}, nil
}

func (f *fakeProvider) Close() error { return nil }

func newTestRuntime(reply string) *Runtime {
	return NewRuntime(&fakeProvider{reply: reply}, Profile{ID: "p1", Features: FeatureMask{SQLTool: true}}, nil, nil)
}

func TestSqlAgent_Draft_Answer(t *testing.T) {
	rt := newTestRuntime(`{"intent":"answer","sql":"SELECT 1","should_visualize":true}`)
	a := NewSqlAgent(rt, prompt.NewBuilder())

	draft, err := a.Draft(context.Background(), "how many rows", &models.SchemaDescriptor{}, "postgres", "", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.IntentAnswer, draft.Intent)
	assert.Equal(t, "SELECT 1", draft.SQL)
	assert.True(t, draft.ShouldVisualize)
}

func TestSqlAgent_Draft_Clarification(t *testing.T) {
	rt := newTestRuntime(`{"intent":"clarification","question":"Which time window?","options":["today","this week","this month","this year"]}`)
	a := NewSqlAgent(rt, prompt.NewBuilder())

	draft, err := a.Draft(context.Background(), "how much revenue", &models.SchemaDescriptor{}, "postgres", "", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.IntentClarification, draft.Intent)
	require.NotNil(t, draft.Clarification)
	assert.Len(t, draft.Clarification.Options, 4)
}

func TestSqlAgent_Draft_StripsCodeFence(t *testing.T) {
	rt := newTestRuntime("```json\n{\"intent\":\"answer\",\"sql\":\"SELECT 2\"}\n```")
	a := NewSqlAgent(rt, prompt.NewBuilder())

	draft, err := a.Draft(context.Background(), "q", &models.SchemaDescriptor{}, "postgres", "", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", draft.SQL)
}
