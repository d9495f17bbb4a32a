package service

import (
	"context"
	"fmt"

	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"go.uber.org/zap"
)

// RoutingDecision is the (form, workflow) pair resolved for a new request.
// WorkflowTemplate is nil in legacy mode: the workflow is then looked up from
// the team at submit time.
type RoutingDecision struct {
	FormTemplate     *entity.FormTemplate
	WorkflowTemplate *entity.WorkflowTemplate
}

// RoutingService resolves which templates route a new purchase request
type RoutingService interface {
	// Resolve maps (team, purchase type) to the active template pair. The
	// result is captured once at request creation and never re-resolved.
	Resolve(ctx context.Context, teamID int64, purchaseType string) (*RoutingDecision, error)
}

type routingServiceImpl struct {
	configRepo   port.ConfigRepository
	formRepo     port.FormTemplateRepository
	workflowRepo port.WorkflowTemplateRepository
	logger       *zap.Logger
}

// NewRoutingService creates a new RoutingService
func NewRoutingService(
	configRepo port.ConfigRepository,
	formRepo port.FormTemplateRepository,
	workflowRepo port.WorkflowTemplateRepository,
	logger *zap.Logger,
) RoutingService {
	return &routingServiceImpl{
		configRepo:   configRepo,
		formRepo:     formRepo,
		workflowRepo: workflowRepo,
		logger:       logger,
	}
}

// Resolve tries the team purchase config first, then falls back to any
// active form template owned by the team (legacy mode, nil workflow).
func (s *routingServiceImpl) Resolve(ctx context.Context, teamID int64, purchaseType string) (*RoutingDecision, error) {
	cfg, err := s.configRepo.GetActive(ctx, teamID, purchaseType)
	if err != nil {
		return nil, fmt.Errorf("lookup purchase config: %w", err)
	}

	if cfg != nil {
		return s.resolveFromConfig(ctx, cfg)
	}

	// Legacy fallback: a team-level active form template with no workflow
	// template; the step router resolves the team's workflow at submit.
	form, err := s.formRepo.GetActiveByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("lookup team form template: %w", err)
	}
	if form == nil {
		s.logger.Warn("No routing configuration",
			zap.Int64("team_id", teamID),
			zap.String("purchase_type", purchaseType))
		return nil, ErrNoRoutingConfig
	}

	s.logger.Info("Resolved routing via legacy team template",
		zap.Int64("team_id", teamID),
		zap.Int64("form_template_id", form.ID))

	return &RoutingDecision{FormTemplate: form}, nil
}

func (s *routingServiceImpl) resolveFromConfig(ctx context.Context, cfg *entity.TeamPurchaseConfig) (*RoutingDecision, error) {
	form, err := s.formRepo.GetByID(ctx, cfg.FormTemplateID)
	if err != nil {
		return nil, fmt.Errorf("load form template: %w", err)
	}
	if form == nil {
		return nil, fmt.Errorf("%w: form template %d", ErrTemplateNotFound, cfg.FormTemplateID)
	}

	workflow, err := s.workflowRepo.GetByID(ctx, cfg.WorkflowTemplateID)
	if err != nil {
		return nil, fmt.Errorf("load workflow template: %w", err)
	}
	if workflow == nil {
		return nil, fmt.Errorf("%w: workflow template %d", ErrTemplateNotFound, cfg.WorkflowTemplateID)
	}

	return &RoutingDecision{FormTemplate: form, WorkflowTemplate: workflow}, nil
}
