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

// WorkflowTemplateRepository implements port.WorkflowTemplateRepository
type WorkflowTemplateRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewWorkflowTemplateRepository creates a new workflow template repository
func NewWorkflowTemplateRepository(db *database.DB, logger *zap.Logger) port.WorkflowTemplateRepository {
	return &WorkflowTemplateRepository{
		db:     db,
		logger: logger,
	}
}

const workflowTemplateColumns = `
	id, name, team_id, version, active, legacy, created_by,
	created_at, updated_at
`

// Create inserts a new workflow template version
func (r *WorkflowTemplateRepository) Create(ctx context.Context, tpl *entity.WorkflowTemplate) error {
	query := `
		INSERT INTO workflow_templates (name, team_id, version, active, legacy, created_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		tpl.Name,
		tpl.TeamID,
		tpl.Version,
		tpl.Active,
		tpl.Legacy,
		tpl.CreatedBy,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow template", zap.Error(err))
		return fmt.Errorf("failed to create workflow template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	tpl.ID = id
	return nil
}

// GetByID retrieves a workflow template version by ID, nil when absent
func (r *WorkflowTemplateRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	query := `SELECT ` + workflowTemplateColumns + ` FROM workflow_templates WHERE id = ?`

	tpl, err := scanWorkflowTemplate(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow template", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow template: %w", err)
	}
	return tpl, nil
}

// GetActiveByFamily retrieves the single active version of a workflow family
func (r *WorkflowTemplateRepository) GetActiveByFamily(ctx context.Context, name string, teamID int64) (*entity.WorkflowTemplate, error) {
	query := `SELECT ` + workflowTemplateColumns + `
		FROM workflow_templates
		WHERE name = ? AND team_id = ? AND active = 1`

	tpl, err := scanWorkflowTemplate(r.db.Executor(ctx).QueryRowContext(ctx, query, name, teamID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active workflow template: %w", err)
	}
	return tpl, nil
}

// GetActiveLegacyByTeam retrieves the team's active legacy workflow, used for
// requests created without a frozen workflow reference
func (r *WorkflowTemplateRepository) GetActiveLegacyByTeam(ctx context.Context, teamID int64) (*entity.WorkflowTemplate, error) {
	query := `SELECT ` + workflowTemplateColumns + `
		FROM workflow_templates
		WHERE team_id = ? AND active = 1 AND legacy = 1
		ORDER BY id
		LIMIT 1`

	tpl, err := scanWorkflowTemplate(r.db.Executor(ctx).QueryRowContext(ctx, query, teamID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get legacy workflow: %w", err)
	}
	return tpl, nil
}

// MaxVersion retrieves the highest version number in a workflow family
func (r *WorkflowTemplateRepository) MaxVersion(ctx context.Context, name string, teamID int64) (int, error) {
	var max int
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM workflow_templates WHERE name = ? AND team_id = ?`,
		name, teamID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max version: %w", err)
	}
	return max, nil
}

// Deactivate marks a workflow template version inactive
func (r *WorkflowTemplateRepository) Deactivate(ctx context.Context, id int64) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE workflow_templates SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id,
	)
	if err != nil {
		r.logger.Error("Failed to deactivate workflow template", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to deactivate workflow template: %w", err)
	}
	return nil
}

// CreateStep inserts a workflow step
func (r *WorkflowTemplateRepository) CreateStep(ctx context.Context, step *entity.WorkflowStep) error {
	query := `
		INSERT INTO workflow_steps (workflow_template_id, name, step_order, is_finance_review, active, policy)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		step.WorkflowTemplateID,
		step.Name,
		step.StepOrder,
		step.IsFinanceReview,
		step.Active,
		step.Policy,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow step", zap.Error(err))
		return fmt.Errorf("failed to create workflow step: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	step.ID = id
	return nil
}

// GetStep retrieves a step with its approver bindings, nil when absent
func (r *WorkflowTemplateRepository) GetStep(ctx context.Context, stepID int64) (*entity.WorkflowStep, error) {
	query := `
		SELECT id, workflow_template_id, name, step_order, is_finance_review,
			active, policy, created_at
		FROM workflow_steps
		WHERE id = ?
	`

	var step entity.WorkflowStep
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, stepID).Scan(
		&step.ID,
		&step.WorkflowTemplateID,
		&step.Name,
		&step.StepOrder,
		&step.IsFinanceReview,
		&step.Active,
		&step.Policy,
		&step.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow step: %w", err)
	}

	approvers, err := r.getApprovers(ctx, []int64{step.ID})
	if err != nil {
		return nil, err
	}
	step.Approvers = approvers[step.ID]
	return &step, nil
}

// GetActiveSteps retrieves a workflow's active steps ordered by step_order,
// with approver bindings attached
func (r *WorkflowTemplateRepository) GetActiveSteps(ctx context.Context, workflowTemplateID int64) ([]*entity.WorkflowStep, error) {
	query := `
		SELECT id, workflow_template_id, name, step_order, is_finance_review,
			active, policy, created_at
		FROM workflow_steps
		WHERE workflow_template_id = ? AND active = 1
		ORDER BY step_order
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, workflowTemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.WorkflowStep
	var stepIDs []int64
	for rows.Next() {
		var step entity.WorkflowStep
		if err := rows.Scan(
			&step.ID,
			&step.WorkflowTemplateID,
			&step.Name,
			&step.StepOrder,
			&step.IsFinanceReview,
			&step.Active,
			&step.Policy,
			&step.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow step: %w", err)
		}
		steps = append(steps, &step)
		stepIDs = append(stepIDs, step.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(steps) == 0 {
		return steps, nil
	}

	approvers, err := r.getApprovers(ctx, stepIDs)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		step.Approvers = approvers[step.ID]
	}
	return steps, nil
}

// CreateStepApprover inserts a step approver binding
func (r *WorkflowTemplateRepository) CreateStepApprover(ctx context.Context, approver *entity.StepApprover) error {
	query := `
		INSERT INTO step_approvers (step_id, role_id, user_id, active)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		approver.StepID,
		approver.RoleID,
		approver.UserID,
		approver.Active,
	)
	if err != nil {
		r.logger.Error("Failed to create step approver", zap.Error(err))
		return fmt.Errorf("failed to create step approver: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	approver.ID = id
	return nil
}

// getApprovers loads approver bindings for a set of steps in one query
func (r *WorkflowTemplateRepository) getApprovers(ctx context.Context, stepIDs []int64) (map[int64][]*entity.StepApprover, error) {
	placeholders := ""
	args := make([]interface{}, len(stepIDs))
	for i, id := range stepIDs {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = id
	}

	query := `
		SELECT id, step_id, role_id, user_id, active
		FROM step_approvers
		WHERE step_id IN (` + placeholders + `)
		ORDER BY id
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get step approvers: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]*entity.StepApprover)
	for rows.Next() {
		var approver entity.StepApprover
		var roleID sql.NullInt64
		var userID sql.NullString
		if err := rows.Scan(
			&approver.ID,
			&approver.StepID,
			&roleID,
			&userID,
			&approver.Active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step approver: %w", err)
		}
		if roleID.Valid {
			approver.RoleID = &roleID.Int64
		}
		if userID.Valid {
			approver.UserID = &userID.String
		}
		out[approver.StepID] = append(out[approver.StepID], &approver)
	}
	return out, rows.Err()
}

func scanWorkflowTemplate(row scanner) (*entity.WorkflowTemplate, error) {
	var tpl entity.WorkflowTemplate
	err := row.Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.TeamID,
		&tpl.Version,
		&tpl.Active,
		&tpl.Legacy,
		&tpl.CreatedBy,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}
