package services

import (
	"context"
	"log/slog"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/execution"
	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/planning"
)

// ExecutionPersister saves execution snapshots after state-changing
// operations; nil disables durability.
type ExecutionPersister interface {
	Save(ctx context.Context, exe *models.Execution) error
}

// ExecutionService fronts the planning engine and the execution state
// machine: build a plan, start it, drive it, override tasks, cancel.
type ExecutionService struct {
	planner   *planning.Engine
	machine   *execution.Machine
	persister ExecutionPersister
	stepCap   int
	logger    *slog.Logger
}

// NewExecutionService creates a new ExecutionService. persister may be
// nil; stepCap bounds Run calls that pass no explicit step limit.
func NewExecutionService(planner *planning.Engine, machine *execution.Machine, persister ExecutionPersister, stepCap int) *ExecutionService {
	if planner == nil {
		panic("NewExecutionService: planner must not be nil")
	}
	if machine == nil {
		panic("NewExecutionService: machine must not be nil")
	}
	if stepCap <= 0 {
		stepCap = 30
	}
	return &ExecutionService{
		planner:   planner,
		machine:   machine,
		persister: persister,
		stepCap:   stepCap,
		logger:    slog.Default().With("component", "execution-service"),
	}
}

// BuildPlan decomposes a question into a task DAG.
func (s *ExecutionService) BuildPlan(_ context.Context, question string, scene models.Scene, loanType string) errs.Envelope[*models.Plan] {
	if question == "" {
		return errs.Fail[*models.Plan](errs.New(errs.KindValidation, "question is required", nil))
	}
	plan, err := s.planner.Build(question, scene, loanType)
	if err != nil {
		return errs.Fail[*models.Plan](asTaxonomy(err))
	}
	return errs.Ok(plan)
}

// Start creates an execution from a plan, or plans the question first when
// no plan is supplied.
func (s *ExecutionService) Start(ctx context.Context, plan *models.Plan, question string, scene models.Scene, loanType string) errs.Envelope[*models.Execution] {
	if plan == nil {
		built := s.BuildPlan(ctx, question, scene, loanType)
		if !built.OK {
			return errs.Fail[*models.Execution](built.Error)
		}
		plan = built.Data
	}
	exe := s.machine.Start(plan)
	s.persist(ctx, exe)
	return errs.Ok(exe)
}

// Tick advances the execution by one task.
func (s *ExecutionService) Tick(ctx context.Context, executionID string) errs.Envelope[*models.Execution] {
	exe, err := s.machine.Tick(ctx, executionID)
	if err != nil {
		return errs.Fail[*models.Execution](asTaxonomy(err))
	}
	s.persist(ctx, exe)
	return errs.Ok(exe)
}

// Run drives the execution until a terminal state or maxSteps; a
// non-positive maxSteps falls back to the configured step cap.
func (s *ExecutionService) Run(ctx context.Context, executionID string, maxSteps int) errs.Envelope[*models.Execution] {
	if maxSteps <= 0 {
		maxSteps = s.stepCap
	}
	exe, err := s.machine.Run(ctx, executionID, maxSteps)
	if err != nil {
		if exe != nil {
			s.persist(ctx, exe)
		}
		return errs.Fail[*models.Execution](asTaxonomy(err))
	}
	s.persist(ctx, exe)
	return errs.Ok(exe)
}

// TaskAction applies an operator override to one task.
func (s *ExecutionService) TaskAction(ctx context.Context, executionID, taskID string, action execution.TaskAction) errs.Envelope[*models.Execution] {
	exe, err := s.machine.TaskAction(ctx, executionID, taskID, action)
	if err != nil {
		return errs.Fail[*models.Execution](asTaxonomy(err))
	}
	s.persist(ctx, exe)
	return errs.Ok(exe)
}

// Cancel marks the execution cancelled.
func (s *ExecutionService) Cancel(ctx context.Context, executionID string) errs.Envelope[*models.Execution] {
	exe, err := s.machine.Cancel(executionID)
	if err != nil {
		return errs.Fail[*models.Execution](asTaxonomy(err))
	}
	s.persist(ctx, exe)
	return errs.Ok(exe)
}

func (s *ExecutionService) persist(ctx context.Context, exe *models.Execution) {
	if s.persister == nil || exe == nil {
		return
	}
	if err := s.persister.Save(ctx, exe); err != nil {
		s.logger.Error("Failed to persist execution snapshot",
			"execution_id", exe.ExecutionID, "error", err)
	}
}
