package repository

import (
	"context"
	"fmt"

	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/pkg/database"
	"go.uber.org/zap"
)

// AttachmentRepository implements port.AttachmentRepository
type AttachmentRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *database.DB, logger *zap.Logger) port.AttachmentRepository {
	return &AttachmentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts attachment metadata
func (r *AttachmentRepository) Create(ctx context.Context, att *entity.Attachment) error {
	query := `
		INSERT INTO attachments (request_id, category, file_name, file_size, uploaded_by)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		att.RequestID,
		att.Category,
		att.FileName,
		att.FileSize,
		att.UploadedBy,
	)
	if err != nil {
		r.logger.Error("Failed to create attachment", zap.Error(err))
		return fmt.Errorf("failed to create attachment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	att.ID = id
	return nil
}

// GetByRequestID retrieves a request's attachments
func (r *AttachmentRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.Attachment, error) {
	query := `
		SELECT id, request_id, category, file_name, file_size, uploaded_by, created_at
		FROM attachments
		WHERE request_id = ?
		ORDER BY id
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var out []*entity.Attachment
	for rows.Next() {
		var att entity.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.RequestID,
			&att.Category,
			&att.FileName,
			&att.FileSize,
			&att.UploadedBy,
			&att.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		out = append(out, &att)
	}
	return out, rows.Err()
}

// CategoriesByRequestID retrieves attachment counts keyed by category
func (r *AttachmentRepository) CategoriesByRequestID(ctx context.Context, requestID int64) (map[string]int, error) {
	query := `
		SELECT category, COUNT(*)
		FROM attachments
		WHERE request_id = ?
		GROUP BY category
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment categories: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan attachment category: %w", err)
		}
		out[category] = count
	}
	return out, rows.Err()
}
