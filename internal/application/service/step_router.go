package service

import (
	"context"
	"fmt"
	"time"

	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/internal/domain/status"
	"go.uber.org/zap"
)

// StepRouter drives a request through its workflow: first step at
// submission, advancement on full-step approval, rejection and finance
// completion. Every mutation is validated against the status graph before it
// touches the request, so no routing path can bypass the state machine.
type StepRouter interface {
	// ResolveSteps loads the active, ordered steps for the request's
	// workflow. Legacy requests (nil workflow template) resolve the team's
	// active legacy workflow.
	ResolveSteps(ctx context.Context, req *entity.PurchaseRequest) ([]*entity.WorkflowStep, error)

	// Submit moves an editable request onto the first workflow step.
	Submit(ctx context.Context, req *entity.PurchaseRequest) error

	// AdvanceOnFullApproval moves the request to the next active step, or
	// to FULLY_APPROVED when the workflow is exhausted. Called only after
	// the approval processor confirms full-step approval.
	AdvanceOnFullApproval(ctx context.Context, req *entity.PurchaseRequest) error

	// RejectCurrent records an authoritative rejection: a single
	// qualifying approver's rejection, no quorum.
	RejectCurrent(ctx context.Context, req *entity.PurchaseRequest, comment string) error

	// Resubmit moves a rejected request back to RESUBMITTED for editing.
	Resubmit(ctx context.Context, req *entity.PurchaseRequest) error

	// CompleteFinance finishes the request from finance review, or
	// directly from FULLY_APPROVED when the workflow has no finance step.
	CompleteFinance(ctx context.Context, req *entity.PurchaseRequest) error

	// Archive moves a completed request to ARCHIVED.
	Archive(ctx context.Context, req *entity.PurchaseRequest) error
}

type stepRouterImpl struct {
	workflowRepo port.WorkflowTemplateRepository
	logger       *zap.Logger
	now          func() time.Time
}

// NewStepRouter creates a new StepRouter
func NewStepRouter(workflowRepo port.WorkflowTemplateRepository, logger *zap.Logger) StepRouter {
	return &stepRouterImpl{
		workflowRepo: workflowRepo,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *stepRouterImpl) ResolveSteps(ctx context.Context, req *entity.PurchaseRequest) ([]*entity.WorkflowStep, error) {
	workflowID, err := s.resolveWorkflowID(ctx, req)
	if err != nil {
		return nil, err
	}

	steps, err := s.workflowRepo.GetActiveSteps(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow steps: %w", err)
	}
	return steps, nil
}

func (s *stepRouterImpl) resolveWorkflowID(ctx context.Context, req *entity.PurchaseRequest) (int64, error) {
	if req.WorkflowTemplateID != nil {
		return *req.WorkflowTemplateID, nil
	}

	// Legacy mode: the workflow was not frozen at creation, the team's
	// active legacy workflow applies.
	workflow, err := s.workflowRepo.GetActiveLegacyByTeam(ctx, req.TeamID)
	if err != nil {
		return 0, fmt.Errorf("lookup legacy workflow: %w", err)
	}
	if workflow == nil {
		return 0, ErrNoActiveWorkflow
	}
	return workflow.ID, nil
}

func (s *stepRouterImpl) Submit(ctx context.Context, req *entity.PurchaseRequest) error {
	if !req.Status.IsEditable() {
		return fmt.Errorf("%w: status %s", ErrRequestNotEditable, req.Status)
	}

	steps, err := s.ResolveSteps(ctx, req)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return ErrNoActiveWorkflow
	}

	hasOrdinary := false
	for _, step := range steps {
		if !step.IsFinanceReview {
			hasOrdinary = true
			break
		}
	}
	if !hasOrdinary {
		return ErrInvalidWorkflowConfig
	}

	// A rejected request passes through RESUBMITTED on its way back in;
	// both hops are validated.
	if req.Status == status.StatusRejected {
		if err := status.Validate(req.Status, status.StatusResubmitted); err != nil {
			return err
		}
		req.Status = status.StatusResubmitted
	}

	if err := status.Validate(req.Status, status.StatusPendingApproval); err != nil {
		return err
	}

	first := steps[0]
	now := s.now()
	req.Status = status.StatusPendingApproval
	req.CurrentStepID = &first.ID
	req.SubmittedAt = &now
	req.RejectionComment = ""

	s.logger.Info("Request submitted",
		zap.Int64("request_id", req.ID),
		zap.Int64("first_step_id", first.ID))
	return nil
}

func (s *stepRouterImpl) AdvanceOnFullApproval(ctx context.Context, req *entity.PurchaseRequest) error {
	if req.CurrentStepID == nil {
		return ErrStepNotFound
	}

	steps, err := s.ResolveSteps(ctx, req)
	if err != nil {
		return err
	}

	next, err := nextActiveStep(steps, *req.CurrentStepID)
	if err != nil {
		return err
	}

	switch {
	case next == nil:
		// Workflow exhausted without a finance step.
		if err := status.Validate(req.Status, status.StatusFullyApproved); err != nil {
			return err
		}
		req.Status = status.StatusFullyApproved
		req.CurrentStepID = nil

	case next.IsFinanceReview:
		if err := status.Validate(req.Status, status.StatusFinanceReview); err != nil {
			return err
		}
		req.Status = status.StatusFinanceReview
		req.CurrentStepID = &next.ID

	default:
		if err := status.Validate(req.Status, status.StatusInReview); err != nil {
			return err
		}
		req.Status = status.StatusInReview
		req.CurrentStepID = &next.ID
	}

	s.logger.Info("Request advanced",
		zap.Int64("request_id", req.ID),
		zap.String("status", req.Status.String()))
	return nil
}

func (s *stepRouterImpl) RejectCurrent(ctx context.Context, req *entity.PurchaseRequest, comment string) error {
	if err := status.Validate(req.Status, status.StatusRejected); err != nil {
		return err
	}

	req.Status = status.StatusRejected
	req.CurrentStepID = nil
	req.RejectionComment = comment

	s.logger.Info("Request rejected", zap.Int64("request_id", req.ID))
	return nil
}

func (s *stepRouterImpl) Resubmit(ctx context.Context, req *entity.PurchaseRequest) error {
	if err := status.Validate(req.Status, status.StatusResubmitted); err != nil {
		return err
	}

	req.Status = status.StatusResubmitted
	req.CurrentStepID = nil
	return nil
}

func (s *stepRouterImpl) CompleteFinance(ctx context.Context, req *entity.PurchaseRequest) error {
	switch req.Status {
	case status.StatusFinanceReview:
		if req.CurrentStepID == nil {
			return ErrStepNotFound
		}
		step, err := s.workflowRepo.GetStep(ctx, *req.CurrentStepID)
		if err != nil {
			return fmt.Errorf("load current step: %w", err)
		}
		if step == nil || !step.IsFinanceReview {
			return fmt.Errorf("%w: current step is not the finance step", status.ErrInvalidTransition)
		}

	case status.StatusFullyApproved:
		// A workflow without a finance step completes directly; there must
		// be no step in progress.
		if req.CurrentStepID != nil {
			return fmt.Errorf("%w: fully approved request still has a step in progress", status.ErrInvalidTransition)
		}

	default:
		return fmt.Errorf("%w: %s -> %s", status.ErrInvalidTransition, req.Status, status.StatusCompleted)
	}

	if err := status.Validate(req.Status, status.StatusCompleted); err != nil {
		return err
	}

	now := s.now()
	req.Status = status.StatusCompleted
	req.CurrentStepID = nil
	req.CompletedAt = &now

	s.logger.Info("Request completed", zap.Int64("request_id", req.ID))
	return nil
}

func (s *stepRouterImpl) Archive(ctx context.Context, req *entity.PurchaseRequest) error {
	if err := status.Validate(req.Status, status.StatusArchived); err != nil {
		return err
	}

	req.Status = status.StatusArchived
	return nil
}

// nextActiveStep returns the active step following currentStepID in
// step_order, or nil when the workflow is exhausted.
func nextActiveStep(steps []*entity.WorkflowStep, currentStepID int64) (*entity.WorkflowStep, error) {
	idx := -1
	for i, step := range steps {
		if step.ID == currentStepID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrStepNotFound
	}
	if idx+1 < len(steps) {
		return steps[idx+1], nil
	}
	return nil, nil
}
