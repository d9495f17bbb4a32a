package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/procurehq/approval-engine/internal/application/service"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/internal/domain/status"
)

// actorHeader carries the acting user's identity; authentication itself is
// handled upstream of this service.
const actorHeader = "X-User-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	approvalService service.ApprovalService
	templateService service.TemplateService
	logger          *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	approvalService service.ApprovalService,
	templateService service.TemplateService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		approvalService: approvalService,
		templateService: templateService,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// CreateRequestBody is the payload for POST /api/requests
type CreateRequestBody struct {
	TeamID        int64  `json:"team_id" binding:"required"`
	PurchaseType  string `json:"purchase_type" binding:"required"`
	Title         string `json:"title" binding:"required"`
	VendorName    string `json:"vendor_name"`
	VendorContact string `json:"vendor_contact"`
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}

	req, err := h.approvalService.CreateRequest(c.Request.Context(), service.CreateRequestInput{
		RequestorID:   actor,
		TeamID:        body.TeamID,
		PurchaseType:  body.PurchaseType,
		Title:         body.Title,
		VendorName:    body.VendorName,
		VendorContact: body.VendorContact,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	teamID, err := strconv.ParseInt(c.Query("team_id"), 10, 64)
	if err != nil {
		h.badRequest(c, errors.New("team_id is required"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	requests, err := h.approvalService.ListRequests(c.Request.Context(), teamID, limit, offset)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	req, err := h.approvalService.GetRequest(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// GetHistory handles GET /api/requests/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	history, err := h.approvalService.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// SetFieldValue handles PUT /api/requests/:id/fields
func (h *Handlers) SetFieldValue(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var value entity.RequestFieldValue
	if err := c.ShouldBindJSON(&value); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.approvalService.SetFieldValue(c.Request.Context(), actor, id, &value); err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: value})
}

// AttachmentBody is the payload for POST /api/requests/:id/attachments
type AttachmentBody struct {
	Category string `json:"category" binding:"required"`
	FileName string `json:"file_name" binding:"required"`
	FileSize int64  `json:"file_size"`
}

// AddAttachment handles POST /api/requests/:id/attachments
func (h *Handlers) AddAttachment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var body AttachmentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}

	att := &entity.Attachment{
		Category:   body.Category,
		FileName:   body.FileName,
		FileSize:   body.FileSize,
		UploadedBy: actor,
	}
	if err := h.approvalService.AddAttachment(c.Request.Context(), actor, id, att); err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: att})
}

// SubmitRequest handles POST /api/requests/:id/submit
func (h *Handlers) SubmitRequest(c *gin.Context) {
	h.transition(c, h.approvalService.Submit)
}

// DecisionBody is the payload for approve and reject calls
type DecisionBody struct {
	Comment string `json:"comment"`
}

// ApproveRequest handles POST /api/requests/:id/approve
func (h *Handlers) ApproveRequest(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	// The comment is optional on approval; an empty body is fine.
	var body DecisionBody
	_ = c.ShouldBindJSON(&body)

	req, err := h.approvalService.Approve(c.Request.Context(), actor, id, body.Comment)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// RejectRequest handles POST /api/requests/:id/reject
func (h *Handlers) RejectRequest(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}

	req, err := h.approvalService.Reject(c.Request.Context(), actor, id, body.Comment)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// CompleteRequest handles POST /api/requests/:id/complete
func (h *Handlers) CompleteRequest(c *gin.Context) {
	h.transition(c, h.approvalService.Complete)
}

// ResubmitRequest handles POST /api/requests/:id/resubmit
func (h *Handlers) ResubmitRequest(c *gin.Context) {
	h.transition(c, h.approvalService.Resubmit)
}

// ArchiveRequest handles POST /api/requests/:id/archive
func (h *Handlers) ArchiveRequest(c *gin.Context) {
	h.transition(c, h.approvalService.Archive)
}

// CreateFormTemplate handles POST /api/templates/forms
func (h *Handlers) CreateFormTemplate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var input service.FormTemplateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	input.CreatedBy = actor

	tpl, err := h.templateService.CreateFormTemplateVersion(c.Request.Context(), input)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: tpl})
}

// GetFormTemplate handles GET /api/templates/forms/:id
func (h *Handlers) GetFormTemplate(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	tpl, err := h.templateService.GetFormTemplate(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tpl})
}

// EditFormTemplateBody is the payload for PATCH /api/templates/forms/:id
type EditFormTemplateBody struct {
	Description string `json:"description"`
}

// EditFormTemplate handles PATCH /api/templates/forms/:id
func (h *Handlers) EditFormTemplate(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var body EditFormTemplateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.templateService.EditFormTemplateInPlace(c.Request.Context(), id, body.Description); err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// CreateWorkflowTemplate handles POST /api/templates/workflows
func (h *Handlers) CreateWorkflowTemplate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var input service.WorkflowTemplateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}
	input.CreatedBy = actor

	tpl, err := h.templateService.CreateWorkflowTemplateVersion(c.Request.Context(), input)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: tpl})
}

// GetWorkflowTemplate handles GET /api/templates/workflows/:id
func (h *Handlers) GetWorkflowTemplate(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	tpl, err := h.templateService.GetWorkflowTemplate(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tpl})
}

// transition runs one of the body-less lifecycle operations
func (h *Handlers) transition(c *gin.Context, op func(ctx context.Context, actor string, id int64) (*entity.PurchaseRequest, error)) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	req, err := op(c.Request.Context(), actor, id)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

func (h *Handlers) actor(c *gin.Context) (string, bool) {
	actor := c.GetHeader(actorHeader)
	if actor == "" {
		c.JSON(http.StatusUnauthorized, Response{
			Success: false,
			Error:   actorHeader + " header is required",
		})
		return "", false
	}
	return actor, true
}

func (h *Handlers) requestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.badRequest(c, errors.New("invalid id"))
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
}

// serviceError maps application errors onto HTTP status codes
func (h *Handlers) serviceError(c *gin.Context, err error) {
	var missingFields *service.MissingFieldsError
	var missingAttachments *service.MissingAttachmentsError

	switch {
	case errors.Is(err, service.ErrRequestNotFound),
		errors.Is(err, service.ErrTemplateNotFound),
		errors.Is(err, service.ErrStepNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})

	case errors.Is(err, service.ErrNotAnApprover),
		errors.Is(err, service.ErrNotRequestor):
		c.JSON(http.StatusForbidden, Response{Success: false, Error: err.Error()})

	case errors.Is(err, service.ErrConcurrentUpdate),
		errors.Is(err, service.ErrActiveVersionConflict),
		errors.Is(err, service.ErrTemplateInUse),
		errors.Is(err, status.ErrInvalidTransition):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})

	case errors.Is(err, service.ErrInvalidComment),
		errors.Is(err, service.ErrRequestNotEditable),
		errors.Is(err, service.ErrNoRoutingConfig),
		errors.Is(err, service.ErrNoActiveWorkflow),
		errors.Is(err, service.ErrInvalidWorkflowConfig),
		errors.Is(err, entity.ErrValueSlotConflict),
		errors.Is(err, status.ErrInvalidStatus),
		errors.As(err, &missingFields),
		errors.As(err, &missingAttachments):
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error()})

	default:
		h.logger.Error("Unhandled service error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
	}
}
