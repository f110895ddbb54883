package execution

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/insightloop/core/pkg/agent"
	"github.com/insightloop/core/pkg/models"
)

// RuntimeInvoker adapts a set of agent Runtimes — one per assigned_agent
// name, each bound to its own Profile/LanguageProvider — into an
// AgentInvoker, so a task's assigned agent is invoked through the generic
// runtime with the accumulated task outputs as context.
type RuntimeInvoker struct {
	runtimes map[string]*agent.Runtime
}

// NewRuntimeInvoker builds a RuntimeInvoker over the given agent-name to
// Runtime binding.
func NewRuntimeInvoker(runtimes map[string]*agent.Runtime) *RuntimeInvoker {
	return &RuntimeInvoker{runtimes: runtimes}
}

// Invoke renders the task and its dependency outputs into a plain prompt
// and dispatches it through the named agent's Runtime.
func (r *RuntimeInvoker) Invoke(ctx context.Context, agentName string, task models.Task, depOutputs map[string]string) (string, error) {
	rt, ok := r.runtimes[agentName]
	if !ok {
		return "", fmt.Errorf("execution: no runtime bound for assigned agent %q", agentName)
	}

	system := fmt.Sprintf("You are the %q step of a multi-agent execution plan. Produce the output for your task; do not restate upstream context verbatim.", agentName)
	user := renderTaskPrompt(task, depOutputs)

	msg, err := rt.Invoke(ctx, agentName, system, user, nil)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// renderTaskPrompt builds a deterministic, dependency-ordered prompt body
// so identical (task, depOutputs) pairs always render identically — useful
// for memoization upstream of the runtime.
func renderTaskPrompt(task models.Task, depOutputs map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.Title)
	if len(depOutputs) > 0 {
		ids := make([]string, 0, len(depOutputs))
		for id := range depOutputs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		b.WriteString("Upstream outputs:\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s: %s\n", id, depOutputs[id])
		}
	}
	return b.String()
}
