package entity

import "time"

// Approver policy constants. A step's approver set is expressed either as
// organizational roles (the current scheme) or as directly assigned users
// (the legacy scheme); a given step uses exactly one.
const (
	PolicyRoleBased = "ROLE"
	PolicyUserBased = "USER"
)

// WorkflowTemplate is one version of an approval workflow. Legacy per-team
// workflows are rows with Legacy=true and user-bound steps; they are matched
// to requests at submit time rather than through a purchase config.
type WorkflowTemplate struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	TeamID    int64     `json:"team_id"`
	Version   int       `json:"version"`
	Active    bool      `json:"active"`
	Legacy    bool      `json:"legacy"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Steps []*WorkflowStep `json:"steps,omitempty"`
}

// WorkflowStep is one ordered stage of a workflow. StepOrder is unique within
// the workflow, and at most one step per workflow carries IsFinanceReview.
type WorkflowStep struct {
	ID                 int64     `json:"id"`
	WorkflowTemplateID int64     `json:"workflow_template_id"`
	Name               string    `json:"name"`
	StepOrder          int       `json:"step_order"`
	IsFinanceReview    bool      `json:"is_finance_review"`
	Active             bool      `json:"active"`
	Policy             string    `json:"policy"` // ROLE or USER
	CreatedAt          time.Time `json:"created_at"`

	Approvers []*StepApprover `json:"approvers,omitempty"`
}

// StepApprover binds one approver identity to a step: a role for role-bound
// steps, a user for user-bound steps.
type StepApprover struct {
	ID     int64   `json:"id"`
	StepID int64   `json:"step_id"`
	RoleID *int64  `json:"role_id,omitempty"`
	UserID *string `json:"user_id,omitempty"`
	Active bool    `json:"active"`
}

// RoleIDs returns the active role identities bound to a role-based step.
func (s *WorkflowStep) RoleIDs() []int64 {
	var roles []int64
	for _, a := range s.Approvers {
		if a.Active && a.RoleID != nil {
			roles = append(roles, *a.RoleID)
		}
	}
	return roles
}

// UserIDs returns the active user identities bound to a user-based step.
func (s *WorkflowStep) UserIDs() []string {
	var users []string
	for _, a := range s.Approvers {
		if a.Active && a.UserID != nil {
			users = append(users, *a.UserID)
		}
	}
	return users
}
