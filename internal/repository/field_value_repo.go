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

// FieldValueRepository implements port.FieldValueRepository
type FieldValueRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewFieldValueRepository creates a new field value repository
func NewFieldValueRepository(db *database.DB, logger *zap.Logger) port.FieldValueRepository {
	return &FieldValueRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or replaces the value for a (request, field) pair. The
// table carries a CHECK enforcing that exactly one value slot is populated.
func (r *FieldValueRepository) Upsert(ctx context.Context, value *entity.RequestFieldValue) error {
	query := `
		INSERT INTO request_field_values (
			request_id, form_field_id, number_value, text_value,
			boolean_value, date_value, option_value
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id, form_field_id) DO UPDATE SET
			number_value = excluded.number_value,
			text_value = excluded.text_value,
			boolean_value = excluded.boolean_value,
			date_value = excluded.date_value,
			option_value = excluded.option_value,
			updated_at = CURRENT_TIMESTAMP
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		value.RequestID,
		value.FormFieldID,
		value.NumberValue,
		value.TextValue,
		value.BooleanValue,
		value.DateValue,
		value.OptionValue,
	)
	if err != nil {
		r.logger.Error("Failed to upsert field value",
			zap.Int64("request_id", value.RequestID),
			zap.Int64("form_field_id", value.FormFieldID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert field value: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		value.ID = id
	}
	return nil
}

// GetByRequestID retrieves all field values of a request
func (r *FieldValueRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.RequestFieldValue, error) {
	query := `
		SELECT id, request_id, form_field_id, number_value, text_value,
			boolean_value, date_value, option_value, created_at, updated_at
		FROM request_field_values
		WHERE request_id = ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get field values: %w", err)
	}
	defer rows.Close()

	var out []*entity.RequestFieldValue
	for rows.Next() {
		var v entity.RequestFieldValue
		var numberValue sql.NullFloat64
		var textValue, optionValue sql.NullString
		var booleanValue sql.NullBool
		var dateValue sql.NullTime
		if err := rows.Scan(
			&v.ID,
			&v.RequestID,
			&v.FormFieldID,
			&numberValue,
			&textValue,
			&booleanValue,
			&dateValue,
			&optionValue,
			&v.CreatedAt,
			&v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan field value: %w", err)
		}
		if numberValue.Valid {
			v.NumberValue = &numberValue.Float64
		}
		if textValue.Valid {
			v.TextValue = &textValue.String
		}
		if booleanValue.Valid {
			v.BooleanValue = &booleanValue.Bool
		}
		if dateValue.Valid {
			v.DateValue = &dateValue.Time
		}
		if optionValue.Valid {
			v.OptionValue = &optionValue.String
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
