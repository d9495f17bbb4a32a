package service

import (
	"context"
	"fmt"

	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"go.uber.org/zap"
)

// ApproverService decides whether a user may act on a workflow step. Steps
// carry one of two approver policies: role-bound (resolved through the
// team's access scopes) or user-bound (direct assignment rows).
type ApproverService interface {
	// IsApprover reports whether the user may act on the step for the
	// given team.
	IsApprover(ctx context.Context, userID string, teamID int64, step *entity.WorkflowStep) (bool, error)

	// ResolveActingRole returns the role the user acts under on a
	// role-bound step: the lowest role ID the user holds that intersects
	// the step's role set. Nil for user-bound steps. Recording only; it
	// plays no part in authorization.
	ResolveActingRole(ctx context.Context, userID string, teamID int64, step *entity.WorkflowStep) (*int64, error)

	// EnsureApprover fails with ErrNotAnApprover when the user may not act
	// on the request's current step.
	EnsureApprover(ctx context.Context, userID string, req *entity.PurchaseRequest, step *entity.WorkflowStep) error

	// EnsureFinanceReviewer authorizes the completion of a request: the
	// actor must qualify for the finance step, or, for a workflow without
	// one, for its final step.
	EnsureFinanceReviewer(ctx context.Context, userID string, req *entity.PurchaseRequest, steps []*entity.WorkflowStep) error

	// HoldsRole reports whether the user holds the role within the team.
	HoldsRole(ctx context.Context, userID string, teamID, roleID int64) (bool, error)
}

type approverServiceImpl struct {
	accessDir port.AccessDirectory
	logger    *zap.Logger
}

// NewApproverService creates a new ApproverService
func NewApproverService(accessDir port.AccessDirectory, logger *zap.Logger) ApproverService {
	return &approverServiceImpl{
		accessDir: accessDir,
		logger:    logger,
	}
}

func (s *approverServiceImpl) IsApprover(ctx context.Context, userID string, teamID int64, step *entity.WorkflowStep) (bool, error) {
	if step == nil {
		return false, nil
	}

	switch step.Policy {
	case entity.PolicyUserBased:
		for _, assigned := range step.UserIDs() {
			if assigned == userID {
				return true, nil
			}
		}
		return false, nil

	case entity.PolicyRoleBased:
		scopes, err := s.accessDir.ActiveScopes(ctx, userID, teamID)
		if err != nil {
			return false, fmt.Errorf("load access scopes: %w", err)
		}
		stepRoles := step.RoleIDs()
		for _, scope := range scopes {
			for _, roleID := range stepRoles {
				if scope.RoleID == roleID {
					return true, nil
				}
			}
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown approver policy %q on step %d", step.Policy, step.ID)
	}
}

func (s *approverServiceImpl) ResolveActingRole(ctx context.Context, userID string, teamID int64, step *entity.WorkflowStep) (*int64, error) {
	if step == nil || step.Policy != entity.PolicyRoleBased {
		return nil, nil
	}

	scopes, err := s.accessDir.ActiveScopes(ctx, userID, teamID)
	if err != nil {
		return nil, fmt.Errorf("load access scopes: %w", err)
	}

	stepRoles := step.RoleIDs()

	// Scopes arrive ordered by role ID ascending, so the first
	// intersection is the deterministic lowest-ID tie-break.
	for _, scope := range scopes {
		for _, roleID := range stepRoles {
			if scope.RoleID == roleID {
				r := roleID
				return &r, nil
			}
		}
	}

	return nil, nil
}

func (s *approverServiceImpl) EnsureApprover(ctx context.Context, userID string, req *entity.PurchaseRequest, step *entity.WorkflowStep) error {
	ok, err := s.IsApprover(ctx, userID, req.TeamID, step)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("Approver check failed",
			zap.String("user_id", userID),
			zap.Int64("request_id", req.ID))
		return ErrNotAnApprover
	}
	return nil
}

func (s *approverServiceImpl) EnsureFinanceReviewer(ctx context.Context, userID string, req *entity.PurchaseRequest, steps []*entity.WorkflowStep) error {
	target := financeTarget(req, steps)
	if target == nil {
		return ErrStepNotFound
	}

	ok, err := s.IsApprover(ctx, userID, req.TeamID, target)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAnApprover
	}
	return nil
}

func (s *approverServiceImpl) HoldsRole(ctx context.Context, userID string, teamID, roleID int64) (bool, error) {
	scopes, err := s.accessDir.ActiveScopes(ctx, userID, teamID)
	if err != nil {
		return false, fmt.Errorf("load access scopes: %w", err)
	}
	for _, scope := range scopes {
		if scope.RoleID == roleID {
			return true, nil
		}
	}
	return false, nil
}

// financeTarget picks the step that authorizes completion: the request's
// current step when one is set, otherwise the workflow's finance step, and
// for workflows without one the final active step.
func financeTarget(req *entity.PurchaseRequest, steps []*entity.WorkflowStep) *entity.WorkflowStep {
	if req.CurrentStepID != nil {
		for _, step := range steps {
			if step.ID == *req.CurrentStepID {
				return step
			}
		}
		return nil
	}

	for _, step := range steps {
		if step.IsFinanceReview {
			return step
		}
	}
	if len(steps) > 0 {
		return steps[len(steps)-1]
	}
	return nil
}
