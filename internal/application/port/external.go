package port

import (
	"context"

	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/internal/domain/event"
)

// AccessDirectory is the read-only source of access scopes for role-based
// approver resolution.
type AccessDirectory interface {
	// ActiveScopes returns the user's active scopes within a team, ordered
	// by role ID ascending (the acting-role tie-break relies on this).
	ActiveScopes(ctx context.Context, userID string, teamID int64) ([]*entity.AccessScope, error)
}

// FieldValidation checks a request against its form template before
// submission and completion.
type FieldValidation interface {
	// RequiredFieldErrors returns the names of required non-file fields
	// that have no value.
	RequiredFieldErrors(ctx context.Context, req *entity.PurchaseRequest) ([]string, error)

	// RequiredAttachmentErrors returns the categories of required file
	// fields that have no attachment.
	RequiredAttachmentErrors(ctx context.Context, req *entity.PurchaseRequest) ([]string, error)
}

// AuditSink receives engine events for the append-only audit log.
// Implementations are fire-and-forget: failures must never roll back the
// engine transaction.
type AuditSink interface {
	Record(ctx context.Context, evt *event.Event) error
}

// NotificationSink delivers best-effort completion notifications. Errors are
// logged by the caller, never propagated.
type NotificationSink interface {
	NotifyCompletion(ctx context.Context, req *entity.PurchaseRequest) error
}
