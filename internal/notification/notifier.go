// Package notification delivers best-effort completion notices through an
// outbox table. Delivery failures are logged and never propagate into the
// approval flow.
package notification

import (
	"context"
	"fmt"

	"github.com/procurehq/approval-engine/internal/application/dispatcher"
	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/internal/domain/event"
	"github.com/procurehq/approval-engine/pkg/database"
	"go.uber.org/zap"
)

// Outbox row states
const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)

// Notifier writes completion notices to the notification outbox. A separate
// delivery process drains the outbox; the engine only enqueues.
type Notifier struct {
	db          *database.DB
	requestRepo port.RequestRepository
	logger      *zap.Logger
}

// NewNotifier creates a new completion notifier
func NewNotifier(db *database.DB, requestRepo port.RequestRepository, logger *zap.Logger) *Notifier {
	return &Notifier{
		db:          db,
		requestRepo: requestRepo,
		logger:      logger,
	}
}

var _ port.NotificationSink = (*Notifier)(nil)

// NotifyCompletion enqueues a completion notice for the requestor
func (n *Notifier) NotifyCompletion(ctx context.Context, req *entity.PurchaseRequest) error {
	query := `
		INSERT INTO notification_outbox (request_id, recipient_id, kind, body, status)
		VALUES (?, ?, 'COMPLETION', ?, ?)
	`

	body := fmt.Sprintf("Purchase request #%d (%s) has been completed", req.ID, req.Title)
	_, err := n.db.Executor(ctx).ExecContext(ctx, query, req.ID, req.RequestorID, body, StatusPending)
	if err != nil {
		n.logger.Error("Failed to enqueue completion notification",
			zap.Int64("request_id", req.ID),
			zap.Error(err))
		return fmt.Errorf("failed to enqueue completion notification: %w", err)
	}

	n.logger.Info("Completion notification enqueued",
		zap.Int64("request_id", req.ID),
		zap.String("recipient_id", req.RequestorID))
	return nil
}

// Register subscribes the notifier to request completion events
func (n *Notifier) Register(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeRequestCompleted, "completion-notifier", func(ctx context.Context, evt *event.Event) error {
		req, err := n.requestRepo.GetByID(ctx, evt.RequestID)
		if err != nil {
			return fmt.Errorf("load completed request: %w", err)
		}
		if req == nil {
			n.logger.Warn("Completed request vanished before notification",
				zap.Int64("request_id", evt.RequestID))
			return nil
		}
		return n.NotifyCompletion(ctx, req)
	})
}
