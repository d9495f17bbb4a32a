package status

import (
	"fmt"
	"sort"
)

// transitions is the canonical status graph. A request may additionally move
// from any non-terminal status to REJECTED, and a same-status transition is
// always a no-op success; both rules live in Validate rather than the table.
var transitions = map[Status][]Status{
	StatusDraft:           {StatusPendingApproval},
	StatusRejected:        {StatusResubmitted},
	StatusResubmitted:     {StatusPendingApproval},
	StatusPendingApproval: {StatusInReview, StatusFinanceReview, StatusFullyApproved},
	StatusInReview:        {StatusFinanceReview, StatusFullyApproved},
	StatusFullyApproved:   {StatusFinanceReview, StatusCompleted},
	StatusFinanceReview:   {StatusCompleted},
	StatusCompleted:       {StatusArchived},
	StatusArchived:        {},
}

// Validate reports whether the transition from old to new is legal. It is a
// pure function: every state-bearing write in the engine goes through it, so
// no mutation path can bypass the status graph.
func Validate(old, new Status) error {
	if !old.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, old)
	}
	if !new.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, new)
	}

	// Same-status transitions are always a no-op success. This covers a
	// request advancing between two ordinary steps while staying IN_REVIEW.
	if old == new {
		return nil
	}

	// Rejection is legal from every non-terminal status, no quorum required.
	if new == StatusRejected && !old.IsTerminal() {
		return nil
	}

	allowed := transitions[old]
	for _, s := range allowed {
		if s == new {
			return nil
		}
	}

	if old.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal, cannot transition to %s", ErrInvalidTransition, old, new)
	}

	return fmt.Errorf("%w: %s -> %s (allowed: %s)", ErrInvalidTransition, old, new, formatAllowed(old))
}

// CanTransition is the boolean form of Validate
func CanTransition(old, new Status) bool {
	return Validate(old, new) == nil
}

// AllowedTargets returns every status reachable from the given status,
// including the implicit rejection edge, sorted for stable output.
func AllowedTargets(old Status) []Status {
	if !old.IsValid() {
		return nil
	}

	targets := append([]Status{}, transitions[old]...)
	if !old.IsTerminal() {
		targets = append(targets, StatusRejected)
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

func formatAllowed(old Status) string {
	targets := AllowedTargets(old)
	if len(targets) == 0 {
		return "none"
	}

	out := ""
	for i, s := range targets {
		if i > 0 {
			out += ", "
		}
		out += s.String()
	}
	return out
}
