package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/procurehq/approval-engine/internal/application/dispatcher"
	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/event"
	"github.com/procurehq/approval-engine/pkg/database"
	"go.uber.org/zap"
)

// Sink persists engine events to the append-only audit log. It implements
// port.AuditSink and plugs into the event dispatcher, so a failing write is
// logged and never affects the state change that produced the event.
type Sink struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSink creates a new audit sink
func NewSink(db *database.DB, logger *zap.Logger) *Sink {
	return &Sink{
		db:     db,
		logger: logger,
	}
}

var _ port.AuditSink = (*Sink)(nil)

// Record appends one event to the audit log
func (s *Sink) Record(ctx context.Context, evt *event.Event) error {
	var payload []byte
	if evt.Payload != nil {
		var err error
		payload, err = json.Marshal(evt.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (event_id, event_type, request_id, actor_id, payload, correlation_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Executor(ctx).ExecContext(ctx, query,
		evt.ID,
		evt.Type.String(),
		evt.RequestID,
		evt.ActorID,
		payload,
		evt.CorrelationID,
		evt.Timestamp,
	)
	if err != nil {
		s.logger.Error("Failed to record audit event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.Error(err))
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Handler adapts the sink to a dispatcher handler
func (s *Sink) Handler() dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		return s.Record(ctx, evt)
	}
}

// RegisterAll subscribes the sink to every engine event type
func (s *Sink) RegisterAll(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeRequestCreated,
		event.TypeRequestSubmitted,
		event.TypeRequestApproved,
		event.TypeRequestRejected,
		event.TypeRequestResubmitted,
		event.TypeRequestCompleted,
		event.TypeRequestArchived,
		event.TypeStepAdvanced,
		event.TypeTemplatePublished,
	} {
		d.Subscribe(t, "audit-sink", s.Handler())
	}
}
