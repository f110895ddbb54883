package planning

import (
	"fmt"

	"github.com/insightloop/core/pkg/models"
)

// ChainNode is one node of a Chain's declarative DAG template.
//
// AssignedAgents holds one or more agent names. More than one agent is a
// fan-out: compiling the node expands it into one Task per agent, all
// sharing the node's DependsOn. Downstream nodes always wait for every
// fan-out sibling to complete (plain AND); there is no OR-join, so a
// "run any N of these" node is realized at the operator level instead:
// once one sibling completes, `task_action(skip)` on the remaining
// siblings (which are Skippable) lets downstream nodes become ready
// without waiting on them, using the existing skip semantics
// rather than inventing new state-machine behavior.
type ChainNode struct {
	NodeID         string   `json:"node_id" yaml:"node_id"`
	Title          string   `json:"title" yaml:"title"`
	AssignedAgents []string `json:"assigned_agents" yaml:"assigned_agents"`
	DependsOn      []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Skippable      bool     `json:"skippable,omitempty" yaml:"skippable,omitempty"`
}

// Chain is the declarative DAG template the planning engine selects and
// materializes into a Plan.
type Chain struct {
	ID          string      `json:"id" yaml:"id"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []ChainNode `json:"nodes" yaml:"nodes"`
}

// Compile expands Chain into a Plan for the given question/scene/loan_type,
// resolving each fan-out node into one Task per assigned agent and
// translating node-level DependsOn into task-level DependsOn across every
// task produced by the referenced node.
func (c *Chain) Compile(question string, scene models.Scene, loanType string) (*models.Plan, error) {
	taskIDsByNode := make(map[string][]string, len(c.Nodes))
	for _, n := range c.Nodes {
		if len(n.AssignedAgents) == 0 {
			return nil, fmt.Errorf("planning: chain %s: node %s has no assigned agent", c.ID, n.NodeID)
		}
		ids := make([]string, len(n.AssignedAgents))
		for i := range n.AssignedAgents {
			if len(n.AssignedAgents) == 1 {
				ids[i] = n.NodeID
			} else {
				ids[i] = fmt.Sprintf("%s#%d", n.NodeID, i)
			}
		}
		taskIDsByNode[n.NodeID] = ids
	}

	var tasks []models.Task
	var edges []models.Edge
	for _, n := range c.Nodes {
		var dependsOn []string
		for _, dep := range n.DependsOn {
			depIDs, ok := taskIDsByNode[dep]
			if !ok {
				return nil, fmt.Errorf("planning: chain %s: node %s depends on unknown node %s", c.ID, n.NodeID, dep)
			}
			dependsOn = append(dependsOn, depIDs...)
		}
		ids := taskIDsByNode[n.NodeID]
		for i, taskID := range ids {
			tasks = append(tasks, models.Task{
				TaskID:        taskID,
				Title:         n.Title,
				AssignedAgent: n.AssignedAgents[i],
				DependsOn:     dependsOn,
				Status:        models.TaskPending,
				Skippable:     n.Skippable,
			})
			for _, dep := range dependsOn {
				edges = append(edges, models.Edge{From: dep, To: taskID})
			}
		}
	}

	return &models.Plan{
		Question: question,
		Scene:    scene,
		LoanType: loanType,
		Tasks:    tasks,
		Edges:    edges,
	}, nil
}
