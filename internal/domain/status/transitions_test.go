package status

import (
	"errors"
	"testing"
)

var allStatuses = []Status{
	StatusDraft,
	StatusPendingApproval,
	StatusInReview,
	StatusRejected,
	StatusResubmitted,
	StatusFullyApproved,
	StatusFinanceReview,
	StatusCompleted,
	StatusArchived,
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusDraft, false},
		{StatusPendingApproval, false},
		{StatusInReview, false},
		{StatusRejected, false},
		{StatusResubmitted, false},
		{StatusFullyApproved, false},
		{StatusFinanceReview, false},
		{StatusCompleted, true},
		{StatusArchived, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("Status.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatus_IsEditable(t *testing.T) {
	editable := map[Status]bool{
		StatusDraft:       true,
		StatusRejected:    true,
		StatusResubmitted: true,
	}

	for _, s := range allStatuses {
		if got := s.IsEditable(); got != editable[s] {
			t.Errorf("Status(%s).IsEditable() = %v, want %v", s, got, editable[s])
		}
	}
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range allStatuses {
		if !s.IsValid() {
			t.Errorf("Status(%s).IsValid() = false, want true", s)
		}
	}

	if Status("INVALID").IsValid() {
		t.Error("Status(INVALID).IsValid() = true, want false")
	}
	if Status("").IsValid() {
		t.Error("empty status should not be valid")
	}
}

func TestValidate_TableClosure(t *testing.T) {
	// The full set of legal directed edges, including the implicit
	// non-terminal -> REJECTED rule. Everything else must fail.
	legal := map[Status]map[Status]bool{
		StatusDraft:           {StatusPendingApproval: true, StatusRejected: true},
		StatusRejected:        {StatusResubmitted: true},
		StatusResubmitted:     {StatusPendingApproval: true, StatusRejected: true},
		StatusPendingApproval: {StatusInReview: true, StatusFinanceReview: true, StatusFullyApproved: true, StatusRejected: true},
		StatusInReview:        {StatusFinanceReview: true, StatusFullyApproved: true, StatusRejected: true},
		StatusFullyApproved:   {StatusFinanceReview: true, StatusCompleted: true, StatusRejected: true},
		StatusFinanceReview:   {StatusCompleted: true, StatusRejected: true},
		StatusCompleted:       {StatusArchived: true},
		StatusArchived:        {},
	}

	for _, old := range allStatuses {
		for _, new := range allStatuses {
			err := Validate(old, new)

			if old == new {
				if err != nil {
					t.Errorf("Validate(%s, %s) same-status should succeed, got %v", old, new, err)
				}
				continue
			}

			if legal[old][new] {
				if err != nil {
					t.Errorf("Validate(%s, %s) = %v, want nil", old, new, err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate(%s, %s) = nil, want error", old, new)
				} else if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("Validate(%s, %s) error = %v, want ErrInvalidTransition", old, new, err)
				}
			}
		}
	}
}

func TestValidate_TerminalStatuses(t *testing.T) {
	// Archival is the single permitted move out of COMPLETED; everything
	// else from a terminal status must fail, identity excepted.
	for _, new := range allStatuses {
		if new == StatusCompleted || new == StatusArchived {
			continue
		}
		if err := Validate(StatusCompleted, new); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Validate(COMPLETED, %s) = %v, want ErrInvalidTransition", new, err)
		}
		if err := Validate(StatusArchived, new); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Validate(ARCHIVED, %s) = %v, want ErrInvalidTransition", new, err)
		}
	}

	if err := Validate(StatusCompleted, StatusArchived); err != nil {
		t.Errorf("Validate(COMPLETED, ARCHIVED) = %v, want nil", err)
	}
	if err := Validate(StatusArchived, StatusCompleted); err == nil {
		t.Error("Validate(ARCHIVED, COMPLETED) should fail")
	}
}

func TestValidate_RejectionFromAnyNonTerminal(t *testing.T) {
	for _, old := range allStatuses {
		err := Validate(old, StatusRejected)
		if old.IsTerminal() {
			if err == nil {
				t.Errorf("Validate(%s, REJECTED) should fail from terminal status", old)
			}
		} else if old != StatusRejected && err != nil {
			t.Errorf("Validate(%s, REJECTED) = %v, want nil", old, err)
		}
	}
}

func TestValidate_InvalidStatus(t *testing.T) {
	if err := Validate(Status("BOGUS"), StatusDraft); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Validate(BOGUS, DRAFT) error = %v, want ErrInvalidStatus", err)
	}
	if err := Validate(StatusDraft, Status("BOGUS")); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Validate(DRAFT, BOGUS) error = %v, want ErrInvalidStatus", err)
	}
}

func TestValidate_ErrorNamesAllowedSet(t *testing.T) {
	err := Validate(StatusDraft, StatusCompleted)
	if err == nil {
		t.Fatal("Validate(DRAFT, COMPLETED) should fail")
	}

	msg := err.Error()
	for _, want := range []string{"PENDING_APPROVAL", "REJECTED"} {
		found := false
		for i := 0; i+len(want) <= len(msg); i++ {
			if msg[i:i+len(want)] == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("error %q should name allowed target %s", msg, want)
		}
	}
}

func TestAllowedTargets(t *testing.T) {
	targets := AllowedTargets(StatusPendingApproval)
	want := map[Status]bool{
		StatusInReview:      true,
		StatusFinanceReview: true,
		StatusFullyApproved: true,
		StatusRejected:      true,
	}

	if len(targets) != len(want) {
		t.Fatalf("AllowedTargets(PENDING_APPROVAL) = %v, want %d targets", targets, len(want))
	}
	for _, s := range targets {
		if !want[s] {
			t.Errorf("unexpected target %s", s)
		}
	}

	if got := AllowedTargets(StatusArchived); len(got) != 0 {
		t.Errorf("AllowedTargets(ARCHIVED) = %v, want empty", got)
	}
}
