package entity

import "time"

// Decision action constants for ApprovalHistory
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)

// ApprovalHistory is one row in the append-only decision ledger. RoleID
// records which role the actor acted under on a role-bound step; it is
// informational only and plays no part in authorization.
type ApprovalHistory struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"request_id"`
	StepID    int64     `json:"step_id"`
	ActorID   string    `json:"actor_id"`
	RoleID    *int64    `json:"role_id,omitempty"`
	Action    string    `json:"action"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
