package port

import (
	"context"
	"errors"

	"github.com/procurehq/approval-engine/internal/domain/entity"
)

// ErrConcurrentUpdate is returned by RequestRepository.UpdateState when the
// optimistic version check fails; the caller may retry against fresh state.
var ErrConcurrentUpdate = errors.New("request was modified concurrently")

// RequestRepository defines persistence operations for PurchaseRequest
type RequestRepository interface {
	Create(ctx context.Context, req *entity.PurchaseRequest) error
	GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error)
	List(ctx context.Context, teamID int64, limit, offset int) ([]*entity.PurchaseRequest, error)

	// UpdateState persists a status-bearing mutation (status, current step,
	// timestamps, rejection comment) guarded by the optimistic version
	// counter: the write only succeeds when the stored version still equals
	// req.Version, and increments it.
	UpdateState(ctx context.Context, req *entity.PurchaseRequest) error

	// CountByTemplate reports how many requests reference a form or
	// workflow template version; used to refuse in-place template edits.
	CountByFormTemplate(ctx context.Context, formTemplateID int64) (int, error)
	CountByWorkflowTemplate(ctx context.Context, workflowTemplateID int64) (int, error)
}

// FieldValueRepository defines persistence operations for RequestFieldValue
type FieldValueRepository interface {
	Upsert(ctx context.Context, value *entity.RequestFieldValue) error
	GetByRequestID(ctx context.Context, requestID int64) ([]*entity.RequestFieldValue, error)
}

// FormTemplateRepository defines persistence operations for FormTemplate
type FormTemplateRepository interface {
	Create(ctx context.Context, tpl *entity.FormTemplate) error
	GetByID(ctx context.Context, id int64) (*entity.FormTemplate, error)
	GetFields(ctx context.Context, formTemplateID int64) ([]*entity.FormField, error)
	CreateField(ctx context.Context, field *entity.FormField) error

	// GetActiveByFamily returns the single active version of the (name,
	// team) family, or nil when none exists.
	GetActiveByFamily(ctx context.Context, name string, teamID int64) (*entity.FormTemplate, error)
	// GetActiveByTeam returns any active form template owned by the team
	// (legacy routing fallback), or nil.
	GetActiveByTeam(ctx context.Context, teamID int64) (*entity.FormTemplate, error)
	MaxVersion(ctx context.Context, name string, teamID int64) (int, error)
	Deactivate(ctx context.Context, id int64) error
	UpdateDescription(ctx context.Context, id int64, description string) error
}

// WorkflowTemplateRepository defines persistence operations for
// WorkflowTemplate and its steps
type WorkflowTemplateRepository interface {
	Create(ctx context.Context, tpl *entity.WorkflowTemplate) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)
	GetActiveByFamily(ctx context.Context, name string, teamID int64) (*entity.WorkflowTemplate, error)

	// GetActiveLegacyByTeam returns the team's active legacy workflow used
	// when a request was created without a workflow template.
	GetActiveLegacyByTeam(ctx context.Context, teamID int64) (*entity.WorkflowTemplate, error)
	MaxVersion(ctx context.Context, name string, teamID int64) (int, error)
	Deactivate(ctx context.Context, id int64) error

	CreateStep(ctx context.Context, step *entity.WorkflowStep) error
	GetStep(ctx context.Context, stepID int64) (*entity.WorkflowStep, error)

	// GetActiveSteps returns the workflow's active steps ordered by
	// step_order, with approvers attached.
	GetActiveSteps(ctx context.Context, workflowTemplateID int64) ([]*entity.WorkflowStep, error)
	CreateStepApprover(ctx context.Context, approver *entity.StepApprover) error
}

// ConfigRepository defines persistence operations for TeamPurchaseConfig
type ConfigRepository interface {
	Create(ctx context.Context, cfg *entity.TeamPurchaseConfig) error
	GetActive(ctx context.Context, teamID int64, purchaseType string) (*entity.TeamPurchaseConfig, error)

	// Repoint atomically retargets the active config rows referencing the
	// old template version to the new one. Called inside the template
	// version-creation transaction.
	RepointFormTemplate(ctx context.Context, oldFormTemplateID, newFormTemplateID int64) error
	RepointWorkflowTemplate(ctx context.Context, oldWorkflowTemplateID, newWorkflowTemplateID int64) error
}

// HistoryRepository defines persistence operations for the append-only
// ApprovalHistory ledger
type HistoryRepository interface {
	Create(ctx context.Context, h *entity.ApprovalHistory) error
	GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error)

	// GetApprovals returns the APPROVE rows for a (request, step) pair,
	// reading rows committed before or within the current transaction.
	GetApprovals(ctx context.Context, requestID, stepID int64) ([]*entity.ApprovalHistory, error)
}

// AttachmentRepository defines persistence operations for attachment metadata
type AttachmentRepository interface {
	Create(ctx context.Context, att *entity.Attachment) error
	GetByRequestID(ctx context.Context, requestID int64) ([]*entity.Attachment, error)
	CategoriesByRequestID(ctx context.Context, requestID int64) (map[string]int, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
