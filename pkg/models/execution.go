package models

import "time"

// ExecutionState is the top-level state of a running Plan instance.
// Terminal states (Completed, Failed, Cancelled) are absorbing.
type ExecutionState string

const (
	ExecutionCreated   ExecutionState = "created"
	ExecutionRunning   ExecutionState = "running"
	ExecutionBlocked   ExecutionState = "blocked"
	ExecutionCompleted ExecutionState = "completed"
	ExecutionFailed    ExecutionState = "failed"
	ExecutionCancelled ExecutionState = "cancelled"
)

// IsTerminal reports whether the state is absorbing.
func (s ExecutionState) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// Execution is the running instance of a Plan, owning a snapshot of the
// Task set it was created with.
type Execution struct {
	ExecutionID string         `json:"execution_id"`
	PlanID      string         `json:"plan_id"`
	State       ExecutionState `json:"state"`
	Tasks       []Task         `json:"tasks"`
	LoanType    string         `json:"loan_type,omitempty"`
	Question    string         `json:"question"`
	CursorIndex int            `json:"cursor_index"`
	// UpdatedAt is bumped on every state-affecting operation; the orphan
	// recovery scan uses it as the execution's heartbeat.
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskByID finds a task snapshot by id.
func (e *Execution) TaskByID(id string) (*Task, bool) {
	for i := range e.Tasks {
		if e.Tasks[i].TaskID == id {
			return &e.Tasks[i], true
		}
	}
	return nil, false
}
