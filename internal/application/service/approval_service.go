package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/procurehq/approval-engine/internal/application/dispatcher"
	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/internal/domain/event"
	"github.com/procurehq/approval-engine/internal/domain/status"
	"go.uber.org/zap"
)

// CreateRequestInput carries the data for a new purchase request
type CreateRequestInput struct {
	RequestorID   string
	TeamID        int64
	PurchaseType  string
	Title         string
	VendorName    string
	VendorContact string
}

// ApprovalService orchestrates the lifecycle of purchase requests: creation,
// editing, submission, approval decisions, finance completion and archival.
// Every mutation runs inside one transaction with the request's optimistic
// version counter guarding against concurrent writers; domain events are
// dispatched only after the transaction commits.
type ApprovalService interface {
	CreateRequest(ctx context.Context, input CreateRequestInput) (*entity.PurchaseRequest, error)

	// SetFieldValue upserts one form field value while the request is
	// editable. Requestor only.
	SetFieldValue(ctx context.Context, userID string, requestID int64, value *entity.RequestFieldValue) error

	// AddAttachment records attachment metadata while the request is
	// editable. Requestor only.
	AddAttachment(ctx context.Context, userID string, requestID int64, att *entity.Attachment) error

	// Submit validates required fields and attachments and moves the
	// request onto the first workflow step. Requestor only.
	Submit(ctx context.Context, userID string, requestID int64) (*entity.PurchaseRequest, error)

	// Approve records an approval on the current step and advances the
	// request once every approver slot of the step is covered.
	Approve(ctx context.Context, userID string, requestID int64, comment string) (*entity.PurchaseRequest, error)

	// Reject records a single authoritative rejection with a mandatory
	// comment; no quorum applies.
	Reject(ctx context.Context, userID string, requestID int64, comment string) (*entity.PurchaseRequest, error)

	// Complete finishes the request from finance review, or directly from
	// FULLY_APPROVED when the workflow carries no finance step.
	Complete(ctx context.Context, userID string, requestID int64) (*entity.PurchaseRequest, error)

	// Resubmit reopens a rejected request for editing. Requestor only.
	Resubmit(ctx context.Context, userID string, requestID int64) (*entity.PurchaseRequest, error)

	// Archive moves a completed request to ARCHIVED.
	Archive(ctx context.Context, userID string, requestID int64) (*entity.PurchaseRequest, error)

	GetRequest(ctx context.Context, requestID int64) (*entity.PurchaseRequest, error)
	ListRequests(ctx context.Context, teamID int64, limit, offset int) ([]*entity.PurchaseRequest, error)
	GetHistory(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error)
}

type approvalServiceImpl struct {
	requestRepo    port.RequestRepository
	fieldValueRepo port.FieldValueRepository
	attachmentRepo port.AttachmentRepository
	workflowRepo   port.WorkflowTemplateRepository
	historyRepo    port.HistoryRepository
	accessDir      port.AccessDirectory

	routing    RoutingService
	approvers  ApproverService
	stepRouter StepRouter
	validation port.FieldValidation

	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     *zap.Logger

	minRejectCommentLen int
	maxListPageSize     int
}

// ApprovalServiceDeps bundles the collaborators of the approval service
type ApprovalServiceDeps struct {
	RequestRepo    port.RequestRepository
	FieldValueRepo port.FieldValueRepository
	AttachmentRepo port.AttachmentRepository
	WorkflowRepo   port.WorkflowTemplateRepository
	HistoryRepo    port.HistoryRepository
	AccessDir      port.AccessDirectory

	Routing    RoutingService
	Approvers  ApproverService
	StepRouter StepRouter
	Validation port.FieldValidation

	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger

	MinRejectCommentLen int
	MaxListPageSize     int
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(deps ApprovalServiceDeps) ApprovalService {
	if deps.MinRejectCommentLen <= 0 {
		deps.MinRejectCommentLen = 10
	}
	if deps.MaxListPageSize <= 0 {
		deps.MaxListPageSize = 100
	}
	return &approvalServiceImpl{
		requestRepo:         deps.RequestRepo,
		fieldValueRepo:      deps.FieldValueRepo,
		attachmentRepo:      deps.AttachmentRepo,
		workflowRepo:        deps.WorkflowRepo,
		historyRepo:         deps.HistoryRepo,
		accessDir:           deps.AccessDir,
		routing:             deps.Routing,
		approvers:           deps.Approvers,
		stepRouter:          deps.StepRouter,
		validation:          deps.Validation,
		txManager:           deps.TxManager,
		dispatcher:          deps.Dispatcher,
		logger:              deps.Logger,
		minRejectCommentLen: deps.MinRejectCommentLen,
		maxListPageSize:     deps.MaxListPageSize,
	}
}

func (s *approvalServiceImpl) CreateRequest(ctx context.Context, input CreateRequestInput) (*entity.PurchaseRequest, error) {
	if input.RequestorID == "" {
		return nil, fmt.Errorf("requestor_id is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}

	decision, err := s.routing.Resolve(ctx, input.TeamID, input.PurchaseType)
	if err != nil {
		return nil, err
	}

	req := &entity.PurchaseRequest{
		RequestorID:    input.RequestorID,
		TeamID:         input.TeamID,
		FormTemplateID: decision.FormTemplate.ID,
		Status:         status.StatusDraft,
		PurchaseType:   input.PurchaseType,
		Title:          input.Title,
		VendorName:     input.VendorName,
		VendorContact:  input.VendorContact,
	}
	if decision.WorkflowTemplate != nil {
		id := decision.WorkflowTemplate.ID
		req.WorkflowTemplateID = &id
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.requestRepo.Create(txCtx, req)
	})
	if err != nil {
		s.logger.Error("Failed to create request",
			zap.String("requestor_id", input.RequestorID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.dispatchEvent(ctx, event.TypeRequestCreated, req, input.RequestorID, nil)

	s.logger.Info("Request created",
		zap.Int64("request_id", req.ID),
		zap.Int64("form_template_id", req.FormTemplateID))
	return req, nil
}

func (s *approvalServiceImpl) SetFieldValue(ctx context.Context, userID string, requestID int64, value *entity.RequestFieldValue) error {
	if err := value.Validate(); err != nil {
		return err
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.loadRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		if err := s.ensureRequestorEditable(req, userID); err != nil {
			return err
		}

		value.RequestID = requestID
		return s.fieldValueRepo.Upsert(txCtx, value)
	})
}

func (s *approvalServiceImpl) AddAttachment(ctx context.Context, userID string, requestID int64, att *entity.Attachment) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.loadRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		if err := s.ensureRequestorEditable(req, userID); err != nil {
			return err
		}

		att.RequestID = requestID
		return s.attachmentRepo.Create(txCtx, att)
	})
}

func (s *approvalServiceImpl) Submit(ctx context.Context, userID string, requestID int64) (*entity.PurchaseRequest, error) {
	var req *entity.PurchaseRequest
	var resubmitted bool

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.loadRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.RequestorID != userID {
			return ErrNotRequestor
		}

		missingFields, err := s.validation.RequiredFieldErrors(txCtx, req)
		if err != nil {
			return fmt.Errorf("validate fields: %w", err)
		}
		if len(missingFields) > 0 {
			return &MissingFieldsError{Fields: missingFields}
		}

		missingAttachments, err := s.validation.RequiredAttachmentErrors(txCtx, req)
		if err != nil {
			return fmt.Errorf("validate attachments: %w", err)
		}
		if len(missingAttachments) > 0 {
			return &MissingAttachmentsError{Categories: missingAttachments}
		}

		resubmitted = req.Status == status.StatusRejected

		if err := s.stepRouter.Submit(txCtx, req); err != nil {
			return err
		}
		return s.requestRepo.UpdateState(txCtx, req)
	})
	if err != nil {
		return nil, err
	}

	if resubmitted {
		s.dispatchEvent(ctx, event.TypeRequestResubmitted, req, userID, nil)
	}
	s.dispatchEvent(ctx, event.TypeRequestSubmitted, req, userID, nil)

	s.logger.Info("Request submitted",
		zap.Int64("request_id", req.ID),
		zap.Bool("resubmission", resubmitted))
	return req, nil
}

func (s *approvalServiceImpl) Approve(ctx context.Context, userID string, requestID int64, comment string) (*entity.PurchaseRequest, error) {
	var req *entity.PurchaseRequest
	var advanced bool

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.loadRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.Status != status.StatusPendingApproval && req.Status != status.StatusInReview {
			return fmt.Errorf("%w: cannot approve in status %s", status.ErrInvalidTransition, req.Status)
		}
		if req.CurrentStepID == nil {
			return ErrStepNotFound
		}

		step, err := s.workflowRepo.GetStep(txCtx, *req.CurrentStepID)
		if err != nil {
			return fmt.Errorf("load current step: %w", err)
		}
		if step == nil {
			return ErrStepNotFound
		}

		if err := s.approvers.EnsureApprover(txCtx, userID, req, step); err != nil {
			return err
		}

		actingRole, err := s.approvers.ResolveActingRole(txCtx, userID, req.TeamID, step)
		if err != nil {
			return err
		}

		if err := s.historyRepo.Create(txCtx, &entity.ApprovalHistory{
			RequestID: req.ID,
			StepID:    step.ID,
			ActorID:   userID,
			RoleID:    actingRole,
			Action:    entity.ActionApprove,
			Comment:   comment,
		}); err != nil {
			return fmt.Errorf("record approval: %w", err)
		}

		complete, err := s.stepFullyApproved(txCtx, req, step)
		if err != nil {
			return err
		}

		if complete {
			if err := s.stepRouter.AdvanceOnFullApproval(txCtx, req); err != nil {
				return err
			}
			advanced = true
		}

		// The version bump lands even when the step is not yet fully
		// approved, so concurrent deciders serialize on the counter.
		return s.requestRepo.UpdateState(txCtx, req)
	})
	if err != nil {
		return nil, err
	}

	approvedEvt := newEvent(ctx, event.TypeRequestApproved, req.ID, userID, nil)
	if comment != "" {
		approvedEvt = approvedEvt.WithPayload("comment", comment)
	}
	s.dispatch(ctx, approvedEvt)
	if advanced {
		s.dispatchEvent(ctx, event.TypeStepAdvanced, req, userID, map[string]interface{}{
			"status": req.Status.String(),
		})
	}

	s.logger.Info("Approval recorded",
		zap.Int64("request_id", req.ID),
		zap.String("actor_id", userID),
		zap.Bool("step_complete", advanced))
	return req, nil
}

func (s *approvalServiceImpl) Reject(ctx context.Context, userID string, requestID int64, comment string) (*entity.PurchaseRequest, error) {
	if utf8.RuneCountInString(strings.TrimSpace(comment)) < s.minRejectCommentLen {
		return nil, ErrInvalidComment
	}

	var req *entity.PurchaseRequest

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.loadRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		// Rejection stays open through finance review: the finance reviewer
		// is a qualifying approver of the current step like any other.
		if req.Status != status.StatusPendingApproval &&
			req.Status != status.StatusInReview &&
			req.Status != status.StatusFinanceReview {
			return fmt.Errorf("%w: cannot reject in status %s", status.ErrInvalidTransition, req.Status)
		}
		if req.CurrentStepID == nil {
			return ErrStepNotFound
		}

		step, err := s.workflowRepo.GetStep(txCtx, *req.CurrentStepID)
		if err != nil {
			return fmt.Errorf("load current step: %w", err)
		}
		if step == nil {
			return ErrStepNotFound
		}

		if err := s.approvers.EnsureApprover(txCtx, userID, req, step); err != nil {
			return err
		}

		actingRole, err := s.approvers.ResolveActingRole(txCtx, userID, req.TeamID, step)
		if err != nil {
			return err
		}

		if err := s.historyRepo.Create(txCtx, &entity.ApprovalHistory{
			RequestID: req.ID,
			StepID:    step.ID,
			ActorID:   userID,
			RoleID:    actingRole,
			Action:    entity.ActionReject,
			Comment:   comment,
		}); err != nil {
			return fmt.Errorf("record rejection: %w", err)
		}

		if err := s.stepRouter.RejectCurrent(txCtx, req, comment); err != nil {
			return err
		}
		return s.requestRepo.UpdateState(txCtx, req)
	})
	if err != nil {
		return nil, err
	}

	s.dispatchEvent(ctx, event.TypeRequestRejected, req, userID, map[string]interface{}{
		"comment": comment,
	})

	s.logger.Info("Request rejected",
		zap.Int64("request_id", req.ID),
		zap.String("actor_id", userID))
	return req, nil
}

func (s *approvalServiceImpl) Complete(ctx context.Context, userID string, requestID int64) (*entity.PurchaseRequest, error) {
	var req *entity.PurchaseRequest

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.loadRequest(txCtx, requestID)
		if err != nil {
			return err
		}

		steps, err := s.stepRouter.ResolveSteps(txCtx, req)
		if err != nil {
			return err
		}
		if err := s.approvers.EnsureFinanceReviewer(txCtx, userID, req, steps); err != nil {
			return err
		}

		// The step authorizing completion: the current finance step, or the
		// final step for workflows without one. Captured before CompleteFinance
		// clears the request's step.
		target := financeTarget(req, steps)
		if target == nil {
			return ErrStepNotFound
		}

		// Attachments are re-checked at completion: categories required by the
		// frozen form must still be present.
		missingAttachments, err := s.validation.RequiredAttachmentErrors(txCtx, req)
		if err != nil {
			return fmt.Errorf("validate attachments: %w", err)
		}
		if len(missingAttachments) > 0 {
			return &MissingAttachmentsError{Categories: missingAttachments}
		}

		if err := s.stepRouter.CompleteFinance(txCtx, req); err != nil {
			return err
		}

		actingRole, err := s.approvers.ResolveActingRole(txCtx, userID, req.TeamID, target)
		if err != nil {
			return err
		}

		// Completion is a decision like any other and lands in the ledger.
		if err := s.historyRepo.Create(txCtx, &entity.ApprovalHistory{
			RequestID: req.ID,
			StepID:    target.ID,
			ActorID:   userID,
			RoleID:    actingRole,
			Action:    entity.ActionApprove,
		}); err != nil {
			return fmt.Errorf("record completion: %w", err)
		}

		return s.requestRepo.UpdateState(txCtx, req)
	})
	if err != nil {
		return nil, err
	}

	s.dispatchEvent(ctx, event.TypeRequestCompleted, req, userID, nil)

	s.logger.Info("Request completed",
		zap.Int64("request_id", req.ID),
		zap.String("actor_id", userID))
	return req, nil
}

func (s *approvalServiceImpl) Resubmit(ctx context.Context, userID string, requestID int64) (*entity.PurchaseRequest, error) {
	var req *entity.PurchaseRequest

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.loadRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.RequestorID != userID {
			return ErrNotRequestor
		}

		if err := s.stepRouter.Resubmit(txCtx, req); err != nil {
			return err
		}
		return s.requestRepo.UpdateState(txCtx, req)
	})
	if err != nil {
		return nil, err
	}

	s.dispatchEvent(ctx, event.TypeRequestResubmitted, req, userID, nil)
	return req, nil
}

func (s *approvalServiceImpl) Archive(ctx context.Context, userID string, requestID int64) (*entity.PurchaseRequest, error) {
	var req *entity.PurchaseRequest

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.loadRequest(txCtx, requestID)
		if err != nil {
			return err
		}

		if err := s.stepRouter.Archive(txCtx, req); err != nil {
			return err
		}
		return s.requestRepo.UpdateState(txCtx, req)
	})
	if err != nil {
		return nil, err
	}

	s.dispatchEvent(ctx, event.TypeRequestArchived, req, userID, nil)
	return req, nil
}

func (s *approvalServiceImpl) GetRequest(ctx context.Context, requestID int64) (*entity.PurchaseRequest, error) {
	return s.loadRequest(ctx, requestID)
}

func (s *approvalServiceImpl) ListRequests(ctx context.Context, teamID int64, limit, offset int) ([]*entity.PurchaseRequest, error) {
	if limit <= 0 || limit > s.maxListPageSize {
		limit = s.maxListPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.requestRepo.List(ctx, teamID, limit, offset)
}

func (s *approvalServiceImpl) GetHistory(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error) {
	if _, err := s.loadRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.historyRepo.GetByRequestID(ctx, requestID)
}

func (s *approvalServiceImpl) loadRequest(ctx context.Context, requestID int64) (*entity.PurchaseRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

func (s *approvalServiceImpl) ensureRequestorEditable(req *entity.PurchaseRequest, userID string) error {
	if req.RequestorID != userID {
		return ErrNotRequestor
	}
	if !req.Status.IsEditable() {
		return fmt.Errorf("%w: status %s", ErrRequestNotEditable, req.Status)
	}
	return nil
}

// stepFullyApproved decides whether the current step has collected every
// approval it needs. Role-bound steps require every distinct role in the
// step's role set to be covered by at least one approving actor who actually
// holds that role; user-bound steps require every assigned user to have
// approved. A role holder shared between roles may cover several of them.
func (s *approvalServiceImpl) stepFullyApproved(ctx context.Context, req *entity.PurchaseRequest, step *entity.WorkflowStep) (bool, error) {
	approvals, err := s.historyRepo.GetApprovals(ctx, req.ID, step.ID)
	if err != nil {
		return false, fmt.Errorf("load step approvals: %w", err)
	}

	approvedBy := make(map[string]bool, len(approvals))
	for _, h := range approvals {
		approvedBy[h.ActorID] = true
	}

	switch step.Policy {
	case entity.PolicyUserBased:
		for _, assigned := range step.UserIDs() {
			if !approvedBy[assigned] {
				return false, nil
			}
		}
		return true, nil

	case entity.PolicyRoleBased:
		for _, roleID := range step.RoleIDs() {
			covered := false
			for actorID := range approvedBy {
				holds, err := s.approvers.HoldsRole(ctx, actorID, req.TeamID, roleID)
				if err != nil {
					return false, err
				}
				if holds {
					covered = true
					break
				}
			}
			if !covered {
				return false, nil
			}
		}
		return true, nil

	default:
		return false, fmt.Errorf("unknown approver policy %q on step %d", step.Policy, step.ID)
	}
}

// dispatchEvent publishes a domain event after the surrounding transaction
// has committed. Delivery is asynchronous and best-effort.
func (s *approvalServiceImpl) dispatchEvent(ctx context.Context, eventType event.Type, req *entity.PurchaseRequest, actorID string, payload map[string]interface{}) {
	s.dispatch(ctx, newEvent(ctx, eventType, req.ID, actorID, payload))
}

func (s *approvalServiceImpl) dispatch(ctx context.Context, evt *event.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, evt)
}

// newEvent builds a domain event, joining the correlation chain of the
// caller's operation when the context carries one.
func newEvent(ctx context.Context, eventType event.Type, requestID int64, actorID string, payload map[string]interface{}) *event.Event {
	if corr := event.CorrelationIDFromContext(ctx); corr != "" {
		return event.NewEventWithCorrelation(eventType, requestID, actorID, payload, corr)
	}
	return event.NewEvent(eventType, requestID, actorID, payload)
}
