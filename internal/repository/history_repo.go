package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/pkg/database"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository. The ledger is
// append-only: no update or delete statements exist here.
type HistoryRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new approval history repository
func NewHistoryRepository(db *database.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a decision row
func (r *HistoryRepository) Create(ctx context.Context, h *entity.ApprovalHistory) error {
	query := `
		INSERT INTO approval_history (request_id, step_id, actor_id, role_id, action, comment)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		h.RequestID,
		h.StepID,
		h.ActorID,
		h.RoleID,
		h.Action,
		h.Comment,
	)
	if err != nil {
		r.logger.Error("Failed to create history entry", zap.Error(err))
		return fmt.Errorf("failed to create history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	h.ID = id
	return nil
}

// GetByRequestID retrieves a request's full decision history, oldest first
func (r *HistoryRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error) {
	query := `
		SELECT id, request_id, step_id, actor_id, role_id, action, comment, created_at
		FROM approval_history
		WHERE request_id = ?
		ORDER BY created_at, id
	`
	return r.query(ctx, query, requestID)
}

// GetApprovals retrieves the APPROVE rows for a (request, step) pair
func (r *HistoryRepository) GetApprovals(ctx context.Context, requestID, stepID int64) ([]*entity.ApprovalHistory, error) {
	query := `
		SELECT id, request_id, step_id, actor_id, role_id, action, comment, created_at
		FROM approval_history
		WHERE request_id = ? AND step_id = ? AND action = ?
		ORDER BY created_at, id
	`
	return r.query(ctx, query, requestID, stepID, entity.ActionApprove)
}

func (r *HistoryRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalHistory, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []*entity.ApprovalHistory
	for rows.Next() {
		var h entity.ApprovalHistory
		var roleID sql.NullInt64
		var comment sql.NullString
		if err := rows.Scan(
			&h.ID,
			&h.RequestID,
			&h.StepID,
			&h.ActorID,
			&roleID,
			&h.Action,
			&comment,
			&h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if roleID.Valid {
			h.RoleID = &roleID.Int64
		}
		h.Comment = comment.String
		out = append(out, &h)
	}
	return out, rows.Err()
}
