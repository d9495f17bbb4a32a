package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/procurehq/approval-engine/internal/application/dispatcher"
	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/internal/domain/event"
	"go.uber.org/zap"
)

// FormFieldInput describes one field of a new form template version
type FormFieldInput struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	FieldType string `json:"field_type"`
	Required  bool   `json:"required"`
	Options   string `json:"options"`
}

// FormTemplateInput describes a new form template version
type FormTemplateInput struct {
	Name        string           `json:"name"`
	TeamID      int64            `json:"team_id"`
	Description string           `json:"description"`
	CreatedBy   string           `json:"-"`
	Fields      []FormFieldInput `json:"fields"`
}

// StepApproverInput binds roles or users to a step being created
type StepApproverInput struct {
	RoleIDs []int64  `json:"role_ids"`
	UserIDs []string `json:"user_ids"`
}

// WorkflowStepInput describes one step of a new workflow template version
type WorkflowStepInput struct {
	Name            string            `json:"name"`
	StepOrder       int               `json:"step_order"`
	IsFinanceReview bool              `json:"is_finance_review"`
	Policy          string            `json:"policy"`
	Approvers       StepApproverInput `json:"approvers"`
}

// WorkflowTemplateInput describes a new workflow template version
type WorkflowTemplateInput struct {
	Name      string              `json:"name"`
	TeamID    int64               `json:"team_id"`
	Legacy    bool                `json:"legacy"`
	CreatedBy string              `json:"-"`
	Steps     []WorkflowStepInput `json:"steps"`
}

// TemplateService owns versioned form and workflow templates. Creating a
// version deactivates the family's prior active version and repoints the
// purchase configs in the same transaction, so exactly one version per
// family is active at any time and in-flight requests keep their frozen
// references.
type TemplateService interface {
	CreateFormTemplateVersion(ctx context.Context, input FormTemplateInput) (*entity.FormTemplate, error)
	CreateWorkflowTemplateVersion(ctx context.Context, input WorkflowTemplateInput) (*entity.WorkflowTemplate, error)

	// EditFormTemplateInPlace updates a version's description only while no
	// request references it; otherwise the caller must create a version.
	EditFormTemplateInPlace(ctx context.Context, formTemplateID int64, description string) error

	GetFormTemplate(ctx context.Context, id int64) (*entity.FormTemplate, error)
	GetWorkflowTemplate(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)
}

type templateServiceImpl struct {
	formRepo     port.FormTemplateRepository
	workflowRepo port.WorkflowTemplateRepository
	configRepo   port.ConfigRepository
	requestRepo  port.RequestRepository
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       *zap.Logger
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(
	formRepo port.FormTemplateRepository,
	workflowRepo port.WorkflowTemplateRepository,
	configRepo port.ConfigRepository,
	requestRepo port.RequestRepository,
	txManager port.TransactionManager,
	eventDispatcher dispatcher.Dispatcher,
	logger *zap.Logger,
) TemplateService {
	return &templateServiceImpl{
		formRepo:     formRepo,
		workflowRepo: workflowRepo,
		configRepo:   configRepo,
		requestRepo:  requestRepo,
		txManager:    txManager,
		dispatcher:   eventDispatcher,
		logger:       logger,
	}
}

func (s *templateServiceImpl) CreateFormTemplateVersion(ctx context.Context, input FormTemplateInput) (*entity.FormTemplate, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("template name is required")
	}

	tpl := &entity.FormTemplate{
		Name:        input.Name,
		TeamID:      input.TeamID,
		Active:      true,
		Description: input.Description,
		CreatedBy:   input.CreatedBy,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		maxVersion, err := s.formRepo.MaxVersion(txCtx, input.Name, input.TeamID)
		if err != nil {
			return fmt.Errorf("resolve family version: %w", err)
		}
		tpl.Version = maxVersion + 1

		// Deactivate-then-activate inside one transaction keeps the
		// single-active-version invariant.
		prior, err := s.formRepo.GetActiveByFamily(txCtx, input.Name, input.TeamID)
		if err != nil {
			return fmt.Errorf("lookup active version: %w", err)
		}
		if prior != nil {
			if err := s.formRepo.Deactivate(txCtx, prior.ID); err != nil {
				return fmt.Errorf("deactivate version %d: %w", prior.Version, err)
			}
		}

		if err := s.formRepo.Create(txCtx, tpl); err != nil {
			return wrapActiveConflict(err)
		}

		for i, f := range input.Fields {
			field := &entity.FormField{
				FormTemplateID: tpl.ID,
				Name:           f.Name,
				Label:          f.Label,
				FieldType:      f.FieldType,
				Required:       f.Required,
				Position:       i + 1,
				Options:        f.Options,
			}
			if err := s.formRepo.CreateField(txCtx, field); err != nil {
				return fmt.Errorf("create field %s: %w", f.Name, err)
			}
			tpl.Fields = append(tpl.Fields, field)
		}

		if prior != nil {
			if err := s.configRepo.RepointFormTemplate(txCtx, prior.ID, tpl.ID); err != nil {
				return fmt.Errorf("repoint purchase configs: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		s.logger.Error("Failed to create form template version",
			zap.String("name", input.Name),
			zap.Error(err))
		return nil, err
	}

	s.publishVersion(ctx, "form", tpl.ID, tpl.Name, tpl.Version, input.CreatedBy)

	s.logger.Info("Form template version created",
		zap.String("name", tpl.Name),
		zap.Int("version", tpl.Version),
		zap.Int64("id", tpl.ID))
	return tpl, nil
}

func (s *templateServiceImpl) CreateWorkflowTemplateVersion(ctx context.Context, input WorkflowTemplateInput) (*entity.WorkflowTemplate, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if err := validateWorkflowSteps(input.Steps); err != nil {
		return nil, err
	}

	tpl := &entity.WorkflowTemplate{
		Name:      input.Name,
		TeamID:    input.TeamID,
		Active:    true,
		Legacy:    input.Legacy,
		CreatedBy: input.CreatedBy,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		maxVersion, err := s.workflowRepo.MaxVersion(txCtx, input.Name, input.TeamID)
		if err != nil {
			return fmt.Errorf("resolve family version: %w", err)
		}
		tpl.Version = maxVersion + 1

		prior, err := s.workflowRepo.GetActiveByFamily(txCtx, input.Name, input.TeamID)
		if err != nil {
			return fmt.Errorf("lookup active version: %w", err)
		}
		if prior != nil {
			if err := s.workflowRepo.Deactivate(txCtx, prior.ID); err != nil {
				return fmt.Errorf("deactivate version %d: %w", prior.Version, err)
			}
		}

		if err := s.workflowRepo.Create(txCtx, tpl); err != nil {
			return wrapActiveConflict(err)
		}

		for _, in := range input.Steps {
			step := &entity.WorkflowStep{
				WorkflowTemplateID: tpl.ID,
				Name:               in.Name,
				StepOrder:          in.StepOrder,
				IsFinanceReview:    in.IsFinanceReview,
				Active:             true,
				Policy:             in.Policy,
			}
			if err := s.workflowRepo.CreateStep(txCtx, step); err != nil {
				return fmt.Errorf("create step %s: %w", in.Name, err)
			}

			for _, roleID := range in.Approvers.RoleIDs {
				r := roleID
				approver := &entity.StepApprover{StepID: step.ID, RoleID: &r, Active: true}
				if err := s.workflowRepo.CreateStepApprover(txCtx, approver); err != nil {
					return fmt.Errorf("create step approver: %w", err)
				}
				step.Approvers = append(step.Approvers, approver)
			}
			for _, userID := range in.Approvers.UserIDs {
				u := userID
				approver := &entity.StepApprover{StepID: step.ID, UserID: &u, Active: true}
				if err := s.workflowRepo.CreateStepApprover(txCtx, approver); err != nil {
					return fmt.Errorf("create step approver: %w", err)
				}
				step.Approvers = append(step.Approvers, approver)
			}

			tpl.Steps = append(tpl.Steps, step)
		}

		if prior != nil {
			if err := s.configRepo.RepointWorkflowTemplate(txCtx, prior.ID, tpl.ID); err != nil {
				return fmt.Errorf("repoint purchase configs: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		s.logger.Error("Failed to create workflow template version",
			zap.String("name", input.Name),
			zap.Error(err))
		return nil, err
	}

	s.publishVersion(ctx, "workflow", tpl.ID, tpl.Name, tpl.Version, input.CreatedBy)

	s.logger.Info("Workflow template version created",
		zap.String("name", tpl.Name),
		zap.Int("version", tpl.Version),
		zap.Int64("id", tpl.ID))
	return tpl, nil
}

// publishVersion announces a newly activated template version after the
// transaction has committed. Template events carry no request; the template
// identity rides in the payload.
func (s *templateServiceImpl) publishVersion(ctx context.Context, kind string, templateID int64, name string, version int, actorID string) {
	if s.dispatcher == nil {
		return
	}
	evt := newEvent(ctx, event.TypeTemplatePublished, 0, actorID, map[string]interface{}{
		"template_kind": kind,
		"template_id":   templateID,
		"template_name": name,
		"version":       version,
	})
	s.dispatcher.DispatchAsync(ctx, evt)
}

func (s *templateServiceImpl) EditFormTemplateInPlace(ctx context.Context, formTemplateID int64, description string) error {
	tpl, err := s.formRepo.GetByID(ctx, formTemplateID)
	if err != nil {
		return fmt.Errorf("load form template: %w", err)
	}
	if tpl == nil {
		return ErrTemplateNotFound
	}

	count, err := s.requestRepo.CountByFormTemplate(ctx, formTemplateID)
	if err != nil {
		return fmt.Errorf("count referencing requests: %w", err)
	}
	if count > 0 {
		return ErrTemplateInUse
	}

	return s.formRepo.UpdateDescription(ctx, formTemplateID, description)
}

func (s *templateServiceImpl) GetFormTemplate(ctx context.Context, id int64) (*entity.FormTemplate, error) {
	tpl, err := s.formRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, ErrTemplateNotFound
	}

	fields, err := s.formRepo.GetFields(ctx, id)
	if err != nil {
		return nil, err
	}
	tpl.Fields = fields
	return tpl, nil
}

func (s *templateServiceImpl) GetWorkflowTemplate(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	tpl, err := s.workflowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, ErrTemplateNotFound
	}

	steps, err := s.workflowRepo.GetActiveSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	tpl.Steps = steps
	return tpl, nil
}

// validateWorkflowSteps checks step ordering, the at-most-one finance step
// rule and the approver policy of each step.
func validateWorkflowSteps(steps []WorkflowStepInput) error {
	financeCount := 0
	seenOrder := make(map[int]bool)

	for _, step := range steps {
		if step.IsFinanceReview {
			financeCount++
		}
		if seenOrder[step.StepOrder] {
			return fmt.Errorf("duplicate step_order %d", step.StepOrder)
		}
		seenOrder[step.StepOrder] = true

		switch step.Policy {
		case entity.PolicyRoleBased:
			if len(step.Approvers.RoleIDs) == 0 || len(step.Approvers.UserIDs) > 0 {
				return fmt.Errorf("role-bound step %s must carry roles only", step.Name)
			}
		case entity.PolicyUserBased:
			if len(step.Approvers.UserIDs) == 0 || len(step.Approvers.RoleIDs) > 0 {
				return fmt.Errorf("user-bound step %s must carry users only", step.Name)
			}
		default:
			return fmt.Errorf("unknown approver policy %q on step %s", step.Policy, step.Name)
		}
	}

	if financeCount > 1 {
		return fmt.Errorf("workflow may have at most one finance step, got %d", financeCount)
	}
	return nil
}

// wrapActiveConflict maps a unique-index violation on the partial active
// index to the typed conflict error.
func wrapActiveConflict(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint") {
		return fmt.Errorf("%w: %v", ErrActiveVersionConflict, err)
	}
	return err
}
