package entity

import (
	"time"

	"github.com/procurehq/approval-engine/internal/domain/status"
)

// PurchaseRequest represents a purchase request moving through an approval
// workflow. The form and workflow template references are frozen at creation:
// template edits create new versions and never retouch in-flight requests.
type PurchaseRequest struct {
	ID                 int64         `json:"id"`
	RequestorID        string        `json:"requestor_id"`
	TeamID             int64         `json:"team_id"`
	FormTemplateID     int64         `json:"form_template_id"`
	WorkflowTemplateID *int64        `json:"workflow_template_id,omitempty"` // nil = legacy flow, resolved at submit
	CurrentStepID      *int64        `json:"current_step_id,omitempty"`      // nil = no step in progress
	Status             status.Status `json:"status"`
	PurchaseType       string        `json:"purchase_type"`
	Title              string        `json:"title"`
	VendorName         string        `json:"vendor_name,omitempty"`
	VendorContact      string        `json:"vendor_contact,omitempty"`
	RejectionComment   string        `json:"rejection_comment,omitempty"`
	SubmittedAt        *time.Time    `json:"submitted_at,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`

	// Version is the optimistic concurrency counter; every status-bearing
	// write increments it and fails if another writer got there first.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLegacyFlow returns true when the request was created without a workflow
// template and routing is resolved at submit time from the team's workflow.
func (r *PurchaseRequest) IsLegacyFlow() bool {
	return r.WorkflowTemplateID == nil
}
