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

// FormTemplateRepository implements port.FormTemplateRepository
type FormTemplateRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewFormTemplateRepository creates a new form template repository
func NewFormTemplateRepository(db *database.DB, logger *zap.Logger) port.FormTemplateRepository {
	return &FormTemplateRepository{
		db:     db,
		logger: logger,
	}
}

const formTemplateColumns = `
	id, name, team_id, version, active, description, created_by,
	created_at, updated_at
`

// Create inserts a new form template version
func (r *FormTemplateRepository) Create(ctx context.Context, tpl *entity.FormTemplate) error {
	query := `
		INSERT INTO form_templates (name, team_id, version, active, description, created_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		tpl.Name,
		tpl.TeamID,
		tpl.Version,
		tpl.Active,
		tpl.Description,
		tpl.CreatedBy,
	)
	if err != nil {
		r.logger.Error("Failed to create form template", zap.Error(err))
		return fmt.Errorf("failed to create form template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	tpl.ID = id
	return nil
}

// GetByID retrieves a form template version by ID, nil when absent
func (r *FormTemplateRepository) GetByID(ctx context.Context, id int64) (*entity.FormTemplate, error) {
	query := `SELECT ` + formTemplateColumns + ` FROM form_templates WHERE id = ?`

	tpl, err := scanFormTemplate(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get form template", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get form template: %w", err)
	}
	return tpl, nil
}

// GetFields retrieves the field definitions of a template version in position
// order
func (r *FormTemplateRepository) GetFields(ctx context.Context, formTemplateID int64) ([]*entity.FormField, error) {
	query := `
		SELECT id, form_template_id, name, label, field_type, required,
			position, options, created_at
		FROM form_fields
		WHERE form_template_id = ?
		ORDER BY position
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, formTemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get form fields: %w", err)
	}
	defer rows.Close()

	var fields []*entity.FormField
	for rows.Next() {
		var field entity.FormField
		var label, options sql.NullString
		if err := rows.Scan(
			&field.ID,
			&field.FormTemplateID,
			&field.Name,
			&label,
			&field.FieldType,
			&field.Required,
			&field.Position,
			&options,
			&field.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan form field: %w", err)
		}
		field.Label = label.String
		field.Options = options.String
		fields = append(fields, &field)
	}
	return fields, rows.Err()
}

// CreateField inserts a field definition for a template version
func (r *FormTemplateRepository) CreateField(ctx context.Context, field *entity.FormField) error {
	query := `
		INSERT INTO form_fields (form_template_id, name, label, field_type, required, position, options)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		field.FormTemplateID,
		field.Name,
		field.Label,
		field.FieldType,
		field.Required,
		field.Position,
		field.Options,
	)
	if err != nil {
		r.logger.Error("Failed to create form field", zap.Error(err))
		return fmt.Errorf("failed to create form field: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	field.ID = id
	return nil
}

// GetActiveByFamily retrieves the single active version of a template family
func (r *FormTemplateRepository) GetActiveByFamily(ctx context.Context, name string, teamID int64) (*entity.FormTemplate, error) {
	query := `SELECT ` + formTemplateColumns + `
		FROM form_templates
		WHERE name = ? AND team_id = ? AND active = 1`

	tpl, err := scanFormTemplate(r.db.Executor(ctx).QueryRowContext(ctx, query, name, teamID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active form template: %w", err)
	}
	return tpl, nil
}

// GetActiveByTeam retrieves the team's active form template for legacy
// routing; the oldest active template wins when several exist
func (r *FormTemplateRepository) GetActiveByTeam(ctx context.Context, teamID int64) (*entity.FormTemplate, error) {
	query := `SELECT ` + formTemplateColumns + `
		FROM form_templates
		WHERE team_id = ? AND active = 1
		ORDER BY id
		LIMIT 1`

	tpl, err := scanFormTemplate(r.db.Executor(ctx).QueryRowContext(ctx, query, teamID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team form template: %w", err)
	}
	return tpl, nil
}

// MaxVersion retrieves the highest version number in a template family
func (r *FormTemplateRepository) MaxVersion(ctx context.Context, name string, teamID int64) (int, error) {
	var max int
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM form_templates WHERE name = ? AND team_id = ?`,
		name, teamID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max version: %w", err)
	}
	return max, nil
}

// Deactivate marks a template version inactive
func (r *FormTemplateRepository) Deactivate(ctx context.Context, id int64) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE form_templates SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id,
	)
	if err != nil {
		r.logger.Error("Failed to deactivate form template", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to deactivate form template: %w", err)
	}
	return nil
}

// UpdateDescription updates a template version's description in place
func (r *FormTemplateRepository) UpdateDescription(ctx context.Context, id int64, description string) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE form_templates SET description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		description, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update form template description: %w", err)
	}
	return nil
}

func scanFormTemplate(row scanner) (*entity.FormTemplate, error) {
	var tpl entity.FormTemplate
	var description sql.NullString

	err := row.Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.TeamID,
		&tpl.Version,
		&tpl.Active,
		&description,
		&tpl.CreatedBy,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tpl.Description = description.String
	return &tpl, nil
}
