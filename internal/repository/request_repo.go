package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/internal/domain/status"
	"github.com/procurehq/approval-engine/pkg/database"
	"go.uber.org/zap"
)

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *database.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `
	id, requestor_id, team_id, form_template_id, workflow_template_id,
	current_step_id, status, purchase_type, title, vendor_name,
	vendor_contact, rejection_comment, submitted_at, completed_at,
	version, created_at, updated_at
`

// Create inserts a new purchase request in DRAFT with version 1
func (r *RequestRepository) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	query := `
		INSERT INTO purchase_requests (
			requestor_id, team_id, form_template_id, workflow_template_id,
			status, purchase_type, title, vendor_name, vendor_contact, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		req.RequestorID,
		req.TeamID,
		req.FormTemplateID,
		req.WorkflowTemplateID,
		req.Status.String(),
		req.PurchaseType,
		req.Title,
		req.VendorName,
		req.VendorContact,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	req.Version = 1
	return nil
}

// GetByID retrieves a purchase request by ID, nil when absent
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE id = ?`

	req, err := r.scanRequest(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// List retrieves a team's requests, newest first
func (r *RequestRepository) List(ctx context.Context, teamID int64, limit, offset int) ([]*entity.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM purchase_requests
		WHERE team_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, teamID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Int64("team_id", teamID), zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []*entity.PurchaseRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// UpdateState persists a status-bearing mutation guarded by the optimistic
// version counter. The UPDATE only matches when the stored version still
// equals req.Version; zero affected rows means another writer won the race.
func (r *RequestRepository) UpdateState(ctx context.Context, req *entity.PurchaseRequest) error {
	query := `
		UPDATE purchase_requests
		SET status = ?, current_step_id = ?, rejection_comment = ?,
			submitted_at = ?, completed_at = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		req.Status.String(),
		req.CurrentStepID,
		req.RejectionComment,
		req.SubmittedAt,
		req.CompletedAt,
		req.ID,
		req.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update request state", zap.Int64("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to update request state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		r.logger.Warn("Optimistic version check failed",
			zap.Int64("id", req.ID),
			zap.Int64("version", req.Version))
		return port.ErrConcurrentUpdate
	}

	req.Version++
	return nil
}

// CountByFormTemplate counts requests referencing a form template version
func (r *RequestRepository) CountByFormTemplate(ctx context.Context, formTemplateID int64) (int, error) {
	var count int
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchase_requests WHERE form_template_id = ?`,
		formTemplateID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count requests by form template: %w", err)
	}
	return count, nil
}

// CountByWorkflowTemplate counts requests referencing a workflow template version
func (r *RequestRepository) CountByWorkflowTemplate(ctx context.Context, workflowTemplateID int64) (int, error) {
	var count int
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchase_requests WHERE workflow_template_id = ?`,
		workflowTemplateID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count requests by workflow template: %w", err)
	}
	return count, nil
}

// scanner covers *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *RequestRepository) scanRequest(row scanner) (*entity.PurchaseRequest, error) {
	var req entity.PurchaseRequest
	var st string
	var workflowTemplateID, currentStepID sql.NullInt64
	var vendorName, vendorContact, rejectionComment sql.NullString
	var submittedAt, completedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.RequestorID,
		&req.TeamID,
		&req.FormTemplateID,
		&workflowTemplateID,
		&currentStepID,
		&st,
		&req.PurchaseType,
		&req.Title,
		&vendorName,
		&vendorContact,
		&rejectionComment,
		&submittedAt,
		&completedAt,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = status.Status(st)
	if workflowTemplateID.Valid {
		req.WorkflowTemplateID = &workflowTemplateID.Int64
	}
	if currentStepID.Valid {
		req.CurrentStepID = &currentStepID.Int64
	}
	req.VendorName = vendorName.String
	req.VendorContact = vendorContact.String
	req.RejectionComment = rejectionComment.String
	if submittedAt.Valid {
		req.SubmittedAt = &submittedAt.Time
	}
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}

	return &req, nil
}
