package service

import (
	"context"
	"testing"

	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func roleBoundStep(id int64, roles ...int64) *entity.WorkflowStep {
	step := &entity.WorkflowStep{ID: id, Policy: entity.PolicyRoleBased, Active: true}
	for _, r := range roles {
		step.Approvers = append(step.Approvers, &entity.StepApprover{StepID: id, RoleID: int64Ptr(r), Active: true})
	}
	return step
}

func userBoundStep(id int64, users ...string) *entity.WorkflowStep {
	step := &entity.WorkflowStep{ID: id, Policy: entity.PolicyUserBased, Active: true}
	for _, u := range users {
		step.Approvers = append(step.Approvers, &entity.StepApprover{StepID: id, UserID: strPtr(u), Active: true})
	}
	return step
}

func TestIsApproverRoleBound(t *testing.T) {
	ctx := context.Background()
	dir := newFakeAccessDirectory()
	dir.grant("alice", 1, 10)
	dir.grant("alice", 2, 20) // other team, must not leak

	svc := NewApproverService(dir, zap.NewNop())
	step := roleBoundStep(1, 10, 20)

	ok, err := svc.IsApprover(ctx, "alice", 1, step)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsApprover(ctx, "alice", 3, step)
	require.NoError(t, err)
	assert.False(t, ok, "scopes are team-scoped")

	ok, err = svc.IsApprover(ctx, "nobody", 1, step)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsApproverUserBound(t *testing.T) {
	ctx := context.Background()
	dir := newFakeAccessDirectory()
	svc := NewApproverService(dir, zap.NewNop())
	step := userBoundStep(1, "u1", "u2")

	ok, err := svc.IsApprover(ctx, "u2", 1, step)
	require.NoError(t, err)
	assert.True(t, ok)

	// Role grants play no part on a user-bound step.
	dir.grant("u3", 1, 10)
	ok, err = svc.IsApprover(ctx, "u3", 1, step)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInactiveApproverBindingIgnored(t *testing.T) {
	ctx := context.Background()
	dir := newFakeAccessDirectory()
	dir.grant("alice", 1, 10)
	svc := NewApproverService(dir, zap.NewNop())

	step := &entity.WorkflowStep{ID: 1, Policy: entity.PolicyRoleBased, Active: true}
	step.Approvers = append(step.Approvers, &entity.StepApprover{StepID: 1, RoleID: int64Ptr(10), Active: false})

	ok, err := svc.IsApprover(ctx, "alice", 1, step)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveActingRolePicksLowestRoleID(t *testing.T) {
	ctx := context.Background()
	dir := newFakeAccessDirectory()
	dir.grant("alice", 1, 30)
	dir.grant("alice", 1, 10)
	dir.grant("alice", 1, 20)
	svc := NewApproverService(dir, zap.NewNop())

	role, err := svc.ResolveActingRole(ctx, "alice", 1, roleBoundStep(1, 20, 30))
	require.NoError(t, err)
	require.NotNil(t, role)
	assert.Equal(t, int64(20), *role)

	// User-bound steps never record an acting role.
	role, err = svc.ResolveActingRole(ctx, "alice", 1, userBoundStep(2, "alice"))
	require.NoError(t, err)
	assert.Nil(t, role)

	// No intersection: nothing to record.
	role, err = svc.ResolveActingRole(ctx, "alice", 1, roleBoundStep(3, 99))
	require.NoError(t, err)
	assert.Nil(t, role)
}

func TestEnsureFinanceReviewerTargets(t *testing.T) {
	ctx := context.Background()
	dir := newFakeAccessDirectory()
	dir.grant("frank", 1, 200)
	dir.grant("mgr", 1, 100)
	svc := NewApproverService(dir, zap.NewNop())

	ordinary := roleBoundStep(1, 100)
	finance := roleBoundStep(2, 200)
	finance.IsFinanceReview = true
	steps := []*entity.WorkflowStep{ordinary, finance}

	req := &entity.PurchaseRequest{ID: 1, TeamID: 1, CurrentStepID: int64Ptr(2)}
	assert.NoError(t, svc.EnsureFinanceReviewer(ctx, "frank", req, steps))
	assert.ErrorIs(t, svc.EnsureFinanceReviewer(ctx, "mgr", req, steps), ErrNotAnApprover)

	// Without a current step the finance step authorizes completion.
	req.CurrentStepID = nil
	assert.NoError(t, svc.EnsureFinanceReviewer(ctx, "frank", req, steps))

	// A workflow without a finance step falls back to its final step.
	noFinance := []*entity.WorkflowStep{ordinary}
	assert.NoError(t, svc.EnsureFinanceReviewer(ctx, "mgr", req, noFinance))
	assert.ErrorIs(t, svc.EnsureFinanceReviewer(ctx, "frank", req, noFinance), ErrNotAnApprover)
}
