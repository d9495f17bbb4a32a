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

// ConfigRepository implements port.ConfigRepository
type ConfigRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewConfigRepository creates a new purchase config repository
func NewConfigRepository(db *database.DB, logger *zap.Logger) port.ConfigRepository {
	return &ConfigRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new team purchase config row
func (r *ConfigRepository) Create(ctx context.Context, cfg *entity.TeamPurchaseConfig) error {
	query := `
		INSERT INTO team_purchase_configs (team_id, purchase_type, form_template_id, workflow_template_id, active)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		cfg.TeamID,
		cfg.PurchaseType,
		cfg.FormTemplateID,
		cfg.WorkflowTemplateID,
		cfg.Active,
	)
	if err != nil {
		r.logger.Error("Failed to create purchase config", zap.Error(err))
		return fmt.Errorf("failed to create purchase config: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	cfg.ID = id
	return nil
}

// GetActive retrieves the active config for a (team, purchase type) pair,
// nil when none is configured
func (r *ConfigRepository) GetActive(ctx context.Context, teamID int64, purchaseType string) (*entity.TeamPurchaseConfig, error) {
	query := `
		SELECT id, team_id, purchase_type, form_template_id, workflow_template_id,
			active, created_at, updated_at
		FROM team_purchase_configs
		WHERE team_id = ? AND purchase_type = ? AND active = 1
	`

	var cfg entity.TeamPurchaseConfig
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, teamID, purchaseType).Scan(
		&cfg.ID,
		&cfg.TeamID,
		&cfg.PurchaseType,
		&cfg.FormTemplateID,
		&cfg.WorkflowTemplateID,
		&cfg.Active,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get purchase config",
			zap.Int64("team_id", teamID),
			zap.String("purchase_type", purchaseType),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase config: %w", err)
	}
	return &cfg, nil
}

// RepointFormTemplate retargets active config rows to a new form template
// version; runs inside the version-creation transaction
func (r *ConfigRepository) RepointFormTemplate(ctx context.Context, oldFormTemplateID, newFormTemplateID int64) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE team_purchase_configs
		SET form_template_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE form_template_id = ? AND active = 1`,
		newFormTemplateID, oldFormTemplateID,
	)
	if err != nil {
		return fmt.Errorf("failed to repoint form template: %w", err)
	}
	return nil
}

// RepointWorkflowTemplate retargets active config rows to a new workflow
// template version; runs inside the version-creation transaction
func (r *ConfigRepository) RepointWorkflowTemplate(ctx context.Context, oldWorkflowTemplateID, newWorkflowTemplateID int64) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE team_purchase_configs
		SET workflow_template_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE workflow_template_id = ? AND active = 1`,
		newWorkflowTemplateID, oldWorkflowTemplateID,
	)
	if err != nil {
		return fmt.Errorf("failed to repoint workflow template: %w", err)
	}
	return nil
}
