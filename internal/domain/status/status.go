package status

// Status represents a purchase request status in the approval lifecycle
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusInReview        Status = "IN_REVIEW"
	StatusRejected        Status = "REJECTED"
	StatusResubmitted     Status = "RESUBMITTED"
	StatusFullyApproved   Status = "FULLY_APPROVED"
	StatusFinanceReview   Status = "FINANCE_REVIEW"
	StatusCompleted       Status = "COMPLETED"
	StatusArchived        Status = "ARCHIVED"
)

var validStatuses = map[Status]bool{
	StatusDraft:           true,
	StatusPendingApproval: true,
	StatusInReview:        true,
	StatusRejected:        true,
	StatusResubmitted:     true,
	StatusFullyApproved:   true,
	StatusFinanceReview:   true,
	StatusCompleted:       true,
	StatusArchived:        true,
}

// terminalStatuses are statuses from which no lifecycle mutation is allowed.
// Archival of a completed request is the single exception, see transitions.go.
var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusArchived:  true,
}

// editableStatuses are statuses in which the requestor may still modify the
// request (field values, attachments) and submit it.
var editableStatuses = map[Status]bool{
	StatusDraft:       true,
	StatusRejected:    true,
	StatusResubmitted: true,
}

// IsTerminal returns true if the status is a terminal status
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsEditable returns true if the requestor may still mutate the request
func (s Status) IsEditable() bool {
	return editableStatuses[s]
}

// IsValid returns true if the status is a known lifecycle status
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}
