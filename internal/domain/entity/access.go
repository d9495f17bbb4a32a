package entity

import "time"

// AccessScope grants a user a role within a team, optionally narrowed to an
// org scope. It is the substrate for role-based approver resolution.
type AccessScope struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	TeamID    int64     `json:"team_id"`
	RoleID    int64     `json:"role_id"`
	OrgScope  string    `json:"org_scope,omitempty"`
	Active    bool      `json:"active"`
	GrantedAt time.Time `json:"granted_at"`
}

// Team is a routing scope for purchase requests.
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Role is an organizational role referenced by access scopes and role-bound
// step approvers.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
