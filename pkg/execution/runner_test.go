package execution

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/core/pkg/models"
)

type fnInvoker func(ctx context.Context, agentName string, task models.Task, deps map[string]string) (string, error)

func (f fnInvoker) Invoke(ctx context.Context, agentName string, task models.Task, deps map[string]string) (string, error) {
	return f(ctx, agentName, task, deps)
}

func TestTaskRunner_DispatchDeliversAllResults(t *testing.T) {
	invoker := fnInvoker(func(ctx context.Context, agentName string, task models.Task, deps map[string]string) (string, error) {
		return "out:" + task.TaskID, nil
	})
	r := NewTaskRunner(invoker, 4)
	defer r.Close()

	for i := 0; i < 3; i++ {
		r.Dispatch(context.Background(), "agent", models.Task{TaskID: fmt.Sprintf("t%d", i)}, nil)
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		res, ok := r.Next(context.Background())
		require.True(t, ok)
		require.NoError(t, res.Err)
		seen[res.TaskID] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, 0, r.Pending())
}

func TestTaskRunner_CancelAllStopsContextPropagation(t *testing.T) {
	started := make(chan struct{})
	invoker := fnInvoker(func(ctx context.Context, agentName string, task models.Task, deps map[string]string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := NewTaskRunner(invoker, 1)
	defer r.Close()

	r.Dispatch(context.Background(), "agent", models.Task{TaskID: "t0"}, nil)
	<-started
	r.CancelAll()

	res, ok := r.Next(context.Background())
	require.True(t, ok)
	assert.Error(t, res.Err)
}
