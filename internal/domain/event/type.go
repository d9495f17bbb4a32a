package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestCreated     Type = "request.created"
	TypeRequestSubmitted   Type = "request.submitted"
	TypeRequestApproved    Type = "request.approved"
	TypeRequestRejected    Type = "request.rejected"
	TypeRequestResubmitted Type = "request.resubmitted"
	TypeRequestCompleted   Type = "request.completed"
	TypeRequestArchived    Type = "request.archived"
	TypeStepAdvanced       Type = "request.step_advanced"
	TypeTemplatePublished  Type = "template.version_published"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestCreated,
		TypeRequestSubmitted,
		TypeRequestApproved,
		TypeRequestRejected,
		TypeRequestResubmitted,
		TypeRequestCompleted,
		TypeRequestArchived,
		TypeStepAdvanced,
		TypeTemplatePublished:
		return true
	default:
		return false
	}
}
