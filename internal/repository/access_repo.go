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

// AccessDirectory implements port.AccessDirectory over the access_scopes
// table.
type AccessDirectory struct {
	db     *database.DB
	logger *zap.Logger
}

// NewAccessDirectory creates a new access directory
func NewAccessDirectory(db *database.DB, logger *zap.Logger) port.AccessDirectory {
	return &AccessDirectory{
		db:     db,
		logger: logger,
	}
}

// ActiveScopes retrieves a user's active scopes within a team. The role ID
// ordering is load-bearing: acting-role resolution takes the first match.
func (r *AccessDirectory) ActiveScopes(ctx context.Context, userID string, teamID int64) ([]*entity.AccessScope, error) {
	query := `
		SELECT id, user_id, team_id, role_id, org_scope, active, granted_at
		FROM access_scopes
		WHERE user_id = ? AND team_id = ? AND active = 1
		ORDER BY role_id
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, userID, teamID)
	if err != nil {
		r.logger.Error("Failed to get access scopes",
			zap.String("user_id", userID),
			zap.Int64("team_id", teamID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get access scopes: %w", err)
	}
	defer rows.Close()

	var out []*entity.AccessScope
	for rows.Next() {
		var scope entity.AccessScope
		var orgScope sql.NullString
		if err := rows.Scan(
			&scope.ID,
			&scope.UserID,
			&scope.TeamID,
			&scope.RoleID,
			&orgScope,
			&scope.Active,
			&scope.GrantedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan access scope: %w", err)
		}
		scope.OrgScope = orgScope.String
		out = append(out, &scope)
	}
	return out, rows.Err()
}
