package service

import (
	"context"
	"testing"

	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFormTemplateVersionIncrementsAndDeactivates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	v1, err := env.templates.CreateFormTemplateVersion(ctx, FormTemplateInput{
		Name: "expense-form", TeamID: 1, CreatedBy: "admin",
		Fields: []FormFieldInput{
			{Name: "amount", FieldType: entity.FieldTypeNumber, Required: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.True(t, v1.Active)

	v2, err := env.templates.CreateFormTemplateVersion(ctx, FormTemplateInput{
		Name: "expense-form", TeamID: 1, CreatedBy: "admin",
		Fields: []FormFieldInput{
			{Name: "amount", FieldType: entity.FieldTypeNumber, Required: true},
			{Name: "justification", FieldType: entity.FieldTypeText, Required: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.Active)

	// The prior version is deactivated but stays readable.
	old, err := env.templates.GetFormTemplate(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.Len(t, old.Fields, 1)

	active, err := env.formRepo.GetActiveByFamily(ctx, "expense-form", 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, v2.ID, active.ID)
}

func TestCreateVersionRepointsActiveConfig(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	form, workflow := env.seedRoutedTeam(t, 1, "SOFTWARE", []WorkflowStepInput{
		roleStep("Review", 1, 10),
	})

	form2, err := env.templates.CreateFormTemplateVersion(ctx, FormTemplateInput{
		Name: form.Name, TeamID: 1, CreatedBy: "admin",
	})
	require.NoError(t, err)

	cfg, err := env.configRepo.GetActive(ctx, 1, "SOFTWARE")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, form2.ID, cfg.FormTemplateID)
	assert.Equal(t, workflow.ID, cfg.WorkflowTemplateID)

	workflow2, err := env.templates.CreateWorkflowTemplateVersion(ctx, WorkflowTemplateInput{
		Name: "purchase-flow", TeamID: 1, CreatedBy: "admin",
		Steps: []WorkflowStepInput{roleStep("Review", 1, 10), financeStep("Finance", 2, 20)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, workflow2.Version)

	cfg, err = env.configRepo.GetActive(ctx, 1, "SOFTWARE")
	require.NoError(t, err)
	assert.Equal(t, workflow2.ID, cfg.WorkflowTemplateID)
}

func TestNewVersionDoesNotRetouchInFlightRequests(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	form, workflow := env.seedRoutedTeam(t, 1, "SOFTWARE", []WorkflowStepInput{
		roleStep("Review", 1, 10),
	})
	env.accessDir.grant("u1", 1, 10)

	req, err := env.approvals.CreateRequest(ctx, CreateRequestInput{
		RequestorID: "bob", TeamID: 1, PurchaseType: "SOFTWARE", Title: "Frozen",
	})
	require.NoError(t, err)
	req, err = env.approvals.Submit(ctx, "bob", req.ID)
	require.NoError(t, err)

	_, err = env.templates.CreateFormTemplateVersion(ctx, FormTemplateInput{
		Name: form.Name, TeamID: 1, CreatedBy: "admin",
	})
	require.NoError(t, err)
	_, err = env.templates.CreateWorkflowTemplateVersion(ctx, WorkflowTemplateInput{
		Name: "purchase-flow", TeamID: 1, CreatedBy: "admin",
		Steps: []WorkflowStepInput{roleStep("Review", 1, 10)},
	})
	require.NoError(t, err)

	// The request keeps its frozen references and still advances on the old
	// workflow version.
	got, err := env.approvals.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, form.ID, got.FormTemplateID)
	require.NotNil(t, got.WorkflowTemplateID)
	assert.Equal(t, workflow.ID, *got.WorkflowTemplateID)

	got, err = env.approvals.Approve(ctx, "u1", req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "FULLY_APPROVED", got.Status.String())
}

func TestEditInPlaceRefusedWhenReferenced(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	form, _ := env.seedRoutedTeam(t, 1, "SOFTWARE", []WorkflowStepInput{
		roleStep("Review", 1, 10),
	})

	require.NoError(t, env.templates.EditFormTemplateInPlace(ctx, form.ID, "updated wording"))

	_, err := env.approvals.CreateRequest(ctx, CreateRequestInput{
		RequestorID: "bob", TeamID: 1, PurchaseType: "SOFTWARE", Title: "Pins the template",
	})
	require.NoError(t, err)

	err = env.templates.EditFormTemplateInPlace(ctx, form.ID, "no longer allowed")
	assert.ErrorIs(t, err, ErrTemplateInUse)

	err = env.templates.EditFormTemplateInPlace(ctx, 9999, "missing")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestCreateVersionPublishesEvent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	form, err := env.templates.CreateFormTemplateVersion(ctx, FormTemplateInput{
		Name: "expense-form", TeamID: 1, CreatedBy: "admin",
	})
	require.NoError(t, err)

	published := env.events.byType(event.TypeTemplatePublished)
	require.Len(t, published, 1)
	assert.Equal(t, "admin", published[0].ActorID)
	assert.Equal(t, "form", published[0].Payload["template_kind"])
	assert.Equal(t, form.ID, published[0].Payload["template_id"])
	assert.Equal(t, 1, published[0].Payload["version"])

	_, err = env.templates.CreateWorkflowTemplateVersion(ctx, WorkflowTemplateInput{
		Name: "flow", TeamID: 1, CreatedBy: "admin",
		Steps: []WorkflowStepInput{roleStep("Review", 1, 10)},
	})
	require.NoError(t, err)

	published = env.events.byType(event.TypeTemplatePublished)
	require.Len(t, published, 2)
	assert.Equal(t, "workflow", published[1].Payload["template_kind"])

	// A refused version publishes nothing.
	_, err = env.templates.CreateWorkflowTemplateVersion(ctx, WorkflowTemplateInput{
		Name: "bad", TeamID: 1, CreatedBy: "admin",
		Steps: []WorkflowStepInput{
			financeStep("F1", 1, 10),
			financeStep("F2", 2, 20),
		},
	})
	require.Error(t, err)
	assert.Len(t, env.events.byType(event.TypeTemplatePublished), 2)
}

func TestWorkflowStepValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.templates.CreateWorkflowTemplateVersion(ctx, WorkflowTemplateInput{
		Name: "bad-flow", TeamID: 1, CreatedBy: "admin",
		Steps: []WorkflowStepInput{
			financeStep("Finance A", 1, 10),
			financeStep("Finance B", 2, 20),
		},
	})
	assert.Error(t, err, "two finance steps must be refused")

	_, err = env.templates.CreateWorkflowTemplateVersion(ctx, WorkflowTemplateInput{
		Name: "bad-flow", TeamID: 1, CreatedBy: "admin",
		Steps: []WorkflowStepInput{
			roleStep("A", 1, 10),
			roleStep("B", 1, 20),
		},
	})
	assert.Error(t, err, "duplicate step_order must be refused")

	_, err = env.templates.CreateWorkflowTemplateVersion(ctx, WorkflowTemplateInput{
		Name: "bad-flow", TeamID: 1, CreatedBy: "admin",
		Steps: []WorkflowStepInput{{
			Name:      "Mixed",
			StepOrder: 1,
			Policy:    entity.PolicyRoleBased,
			Approvers: StepApproverInput{RoleIDs: []int64{10}, UserIDs: []string{"u1"}},
		}},
	})
	assert.Error(t, err, "mixed approver bindings must be refused")
}
