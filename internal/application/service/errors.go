package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/procurehq/approval-engine/internal/application/port"
)

var (
	// ErrNotAnApprover is returned when the actor cannot act on the
	// request's current step
	ErrNotAnApprover = errors.New("user is not an approver for the current step")

	// ErrNotRequestor is returned when someone other than the requestor
	// attempts a requestor-only operation
	ErrNotRequestor = errors.New("user is not the requestor of this request")

	// ErrNoRoutingConfig is returned when neither a purchase config nor a
	// legacy team template yields a form template
	ErrNoRoutingConfig = errors.New("no routing configuration for team and purchase type")

	// ErrNoActiveWorkflow is returned when a workflow has no active steps
	ErrNoActiveWorkflow = errors.New("no active workflow for request")

	// ErrInvalidWorkflowConfig is returned for a workflow with zero
	// non-finance active steps
	ErrInvalidWorkflowConfig = errors.New("workflow has no non-finance steps")

	// ErrInvalidComment is returned when a rejection comment is missing or
	// too short
	ErrInvalidComment = errors.New("rejection comment is required and must be at least 10 characters")

	// ErrRequestNotFound is returned when the request does not exist
	ErrRequestNotFound = errors.New("purchase request not found")

	// ErrRequestNotEditable is returned when the request is not in an
	// editable status
	ErrRequestNotEditable = errors.New("request is not in an editable status")

	// ErrTemplateNotFound is returned when a template version does not exist
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateInUse is returned when an in-place edit targets a template
	// version referenced by existing requests
	ErrTemplateInUse = errors.New("template version is referenced by existing requests, create a new version instead")

	// ErrActiveVersionConflict is returned when the single-active-version
	// invariant would be violated
	ErrActiveVersionConflict = errors.New("template family already has an active version")

	// ErrConcurrentUpdate is the persistence-layer optimistic version
	// failure, re-exported for callers of this package
	ErrConcurrentUpdate = port.ErrConcurrentUpdate

	// ErrStepNotFound is returned when the request's current step cannot be
	// loaded
	ErrStepNotFound = errors.New("workflow step not found")
)

// MissingFieldsError carries the required fields that have no value
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// MissingAttachmentsError carries the required attachment categories that
// have no upload
type MissingAttachmentsError struct {
	Categories []string
}

func (e *MissingAttachmentsError) Error() string {
	return fmt.Sprintf("missing required attachments: %s", strings.Join(e.Categories, ", "))
}
