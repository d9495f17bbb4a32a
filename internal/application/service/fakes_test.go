package service

import (
	"context"
	"sort"
	"sync"

	"github.com/procurehq/approval-engine/internal/application/dispatcher"
	"github.com/procurehq/approval-engine/internal/domain/entity"
	"github.com/procurehq/approval-engine/internal/domain/event"
)

// In-memory fakes backing the service tests. They mirror the persistence
// contracts closely enough to drive full lifecycle scenarios, including the
// optimistic version counter on purchase requests.

type fakeTxManager struct{}

func (fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- requests ---

type fakeRequestRepo struct {
	mu       sync.Mutex
	seq      int64
	requests map[int64]*entity.PurchaseRequest
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[int64]*entity.PurchaseRequest)}
}

func (r *fakeRequestRepo) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	req.ID = r.seq
	req.Version = 1
	stored := *req
	r.requests[req.ID] = &stored
	return nil
}

func (r *fakeRequestRepo) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *stored
	return &cp, nil
}

func (r *fakeRequestRepo) List(ctx context.Context, teamID int64, limit, offset int) ([]*entity.PurchaseRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.PurchaseRequest
	for _, req := range r.requests {
		if req.TeamID == teamID {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateState applies the optimistic version check the real repository
// implements with a guarded UPDATE.
func (r *fakeRequestRepo) UpdateState(ctx context.Context, req *entity.PurchaseRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[req.ID]
	if !ok {
		return ErrRequestNotFound
	}
	if stored.Version != req.Version {
		return ErrConcurrentUpdate
	}
	req.Version++
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *fakeRequestRepo) CountByFormTemplate(ctx context.Context, formTemplateID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.requests {
		if req.FormTemplateID == formTemplateID {
			n++
		}
	}
	return n, nil
}

func (r *fakeRequestRepo) CountByWorkflowTemplate(ctx context.Context, workflowTemplateID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.requests {
		if req.WorkflowTemplateID != nil && *req.WorkflowTemplateID == workflowTemplateID {
			n++
		}
	}
	return n, nil
}

// --- form templates ---

type fakeFormRepo struct {
	mu        sync.Mutex
	seq       int64
	fieldSeq  int64
	templates map[int64]*entity.FormTemplate
	fields    map[int64][]*entity.FormField
}

func newFakeFormRepo() *fakeFormRepo {
	return &fakeFormRepo{
		templates: make(map[int64]*entity.FormTemplate),
		fields:    make(map[int64][]*entity.FormField),
	}
}

func (r *fakeFormRepo) Create(ctx context.Context, tpl *entity.FormTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	tpl.ID = r.seq
	cp := *tpl
	r.templates[tpl.ID] = &cp
	return nil
}

func (r *fakeFormRepo) GetByID(ctx context.Context, id int64) (*entity.FormTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tpl, ok := r.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *tpl
	return &cp, nil
}

func (r *fakeFormRepo) GetFields(ctx context.Context, formTemplateID int64) ([]*entity.FormField, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.FormField(nil), r.fields[formTemplateID]...), nil
}

func (r *fakeFormRepo) CreateField(ctx context.Context, field *entity.FormField) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fieldSeq++
	field.ID = r.fieldSeq
	cp := *field
	r.fields[field.FormTemplateID] = append(r.fields[field.FormTemplateID], &cp)
	return nil
}

func (r *fakeFormRepo) GetActiveByFamily(ctx context.Context, name string, teamID int64) (*entity.FormTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tpl := range r.templates {
		if tpl.Active && tpl.Name == name && tpl.TeamID == teamID {
			cp := *tpl
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeFormRepo) GetActiveByTeam(ctx context.Context, teamID int64) (*entity.FormTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *entity.FormTemplate
	for _, tpl := range r.templates {
		if tpl.Active && tpl.TeamID == teamID {
			if best == nil || tpl.ID < best.ID {
				best = tpl
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *fakeFormRepo) MaxVersion(ctx context.Context, name string, teamID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, tpl := range r.templates {
		if tpl.Name == name && tpl.TeamID == teamID && tpl.Version > max {
			max = tpl.Version
		}
	}
	return max, nil
}

func (r *fakeFormRepo) Deactivate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.templates[id]; ok {
		tpl.Active = false
	}
	return nil
}

func (r *fakeFormRepo) UpdateDescription(ctx context.Context, id int64, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.templates[id]; ok {
		tpl.Description = description
	}
	return nil
}

// --- workflow templates ---

type fakeWorkflowRepo struct {
	mu          sync.Mutex
	seq         int64
	stepSeq     int64
	approverSeq int64
	templates   map[int64]*entity.WorkflowTemplate
	steps       map[int64]*entity.WorkflowStep
	byWorkflow  map[int64][]int64
}

func newFakeWorkflowRepo() *fakeWorkflowRepo {
	return &fakeWorkflowRepo{
		templates:  make(map[int64]*entity.WorkflowTemplate),
		steps:      make(map[int64]*entity.WorkflowStep),
		byWorkflow: make(map[int64][]int64),
	}
}

func (r *fakeWorkflowRepo) Create(ctx context.Context, tpl *entity.WorkflowTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	tpl.ID = r.seq
	cp := *tpl
	r.templates[tpl.ID] = &cp
	return nil
}

func (r *fakeWorkflowRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tpl, ok := r.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *tpl
	return &cp, nil
}

func (r *fakeWorkflowRepo) GetActiveByFamily(ctx context.Context, name string, teamID int64) (*entity.WorkflowTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tpl := range r.templates {
		if tpl.Active && tpl.Name == name && tpl.TeamID == teamID {
			cp := *tpl
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeWorkflowRepo) GetActiveLegacyByTeam(ctx context.Context, teamID int64) (*entity.WorkflowTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tpl := range r.templates {
		if tpl.Active && tpl.Legacy && tpl.TeamID == teamID {
			cp := *tpl
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeWorkflowRepo) MaxVersion(ctx context.Context, name string, teamID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, tpl := range r.templates {
		if tpl.Name == name && tpl.TeamID == teamID && tpl.Version > max {
			max = tpl.Version
		}
	}
	return max, nil
}

func (r *fakeWorkflowRepo) Deactivate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.templates[id]; ok {
		tpl.Active = false
	}
	return nil
}

func (r *fakeWorkflowRepo) CreateStep(ctx context.Context, step *entity.WorkflowStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepSeq++
	step.ID = r.stepSeq
	cp := *step
	r.steps[step.ID] = &cp
	r.byWorkflow[step.WorkflowTemplateID] = append(r.byWorkflow[step.WorkflowTemplateID], step.ID)
	return nil
}

func (r *fakeWorkflowRepo) GetStep(ctx context.Context, stepID int64) (*entity.WorkflowStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	step, ok := r.steps[stepID]
	if !ok {
		return nil, nil
	}
	cp := *step
	cp.Approvers = append([]*entity.StepApprover(nil), step.Approvers...)
	return &cp, nil
}

func (r *fakeWorkflowRepo) GetActiveSteps(ctx context.Context, workflowTemplateID int64) ([]*entity.WorkflowStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.WorkflowStep
	for _, id := range r.byWorkflow[workflowTemplateID] {
		step := r.steps[id]
		if !step.Active {
			continue
		}
		cp := *step
		cp.Approvers = append([]*entity.StepApprover(nil), step.Approvers...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

func (r *fakeWorkflowRepo) CreateStepApprover(ctx context.Context, approver *entity.StepApprover) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approverSeq++
	approver.ID = r.approverSeq
	cp := *approver
	if step, ok := r.steps[approver.StepID]; ok {
		step.Approvers = append(step.Approvers, &cp)
	}
	return nil
}

// --- purchase configs ---

type fakeConfigRepo struct {
	mu   sync.Mutex
	seq  int64
	rows []*entity.TeamPurchaseConfig
}

func newFakeConfigRepo() *fakeConfigRepo { return &fakeConfigRepo{} }

func (r *fakeConfigRepo) Create(ctx context.Context, cfg *entity.TeamPurchaseConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cfg.ID = r.seq
	cp := *cfg
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *fakeConfigRepo) GetActive(ctx context.Context, teamID int64, purchaseType string) (*entity.TeamPurchaseConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Active && row.TeamID == teamID && row.PurchaseType == purchaseType {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeConfigRepo) RepointFormTemplate(ctx context.Context, oldID, newID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Active && row.FormTemplateID == oldID {
			row.FormTemplateID = newID
		}
	}
	return nil
}

func (r *fakeConfigRepo) RepointWorkflowTemplate(ctx context.Context, oldID, newID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Active && row.WorkflowTemplateID == oldID {
			row.WorkflowTemplateID = newID
		}
	}
	return nil
}

// --- approval history ---

type fakeHistoryRepo struct {
	mu   sync.Mutex
	seq  int64
	rows []*entity.ApprovalHistory
}

func newFakeHistoryRepo() *fakeHistoryRepo { return &fakeHistoryRepo{} }

func (r *fakeHistoryRepo) Create(ctx context.Context, h *entity.ApprovalHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	h.ID = r.seq
	cp := *h
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *fakeHistoryRepo) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ApprovalHistory
	for _, row := range r.rows {
		if row.RequestID == requestID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) GetApprovals(ctx context.Context, requestID, stepID int64) ([]*entity.ApprovalHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ApprovalHistory
	for _, row := range r.rows {
		if row.RequestID == requestID && row.StepID == stepID && row.Action == entity.ActionApprove {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- field values ---

type fieldValueKey struct {
	requestID int64
	fieldID   int64
}

type fakeFieldValueRepo struct {
	mu     sync.Mutex
	seq    int64
	values map[fieldValueKey]*entity.RequestFieldValue
}

func newFakeFieldValueRepo() *fakeFieldValueRepo {
	return &fakeFieldValueRepo{values: make(map[fieldValueKey]*entity.RequestFieldValue)}
}

func (r *fakeFieldValueRepo) Upsert(ctx context.Context, value *entity.RequestFieldValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fieldValueKey{requestID: value.RequestID, fieldID: value.FormFieldID}
	if existing, ok := r.values[key]; ok {
		value.ID = existing.ID
	} else {
		r.seq++
		value.ID = r.seq
	}
	cp := *value
	r.values[key] = &cp
	return nil
}

func (r *fakeFieldValueRepo) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.RequestFieldValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.RequestFieldValue
	for key, value := range r.values {
		if key.requestID == requestID {
			cp := *value
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- attachments ---

type fakeAttachmentRepo struct {
	mu   sync.Mutex
	seq  int64
	rows []*entity.Attachment
}

func newFakeAttachmentRepo() *fakeAttachmentRepo { return &fakeAttachmentRepo{} }

func (r *fakeAttachmentRepo) Create(ctx context.Context, att *entity.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	att.ID = r.seq
	cp := *att
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *fakeAttachmentRepo) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Attachment
	for _, row := range r.rows {
		if row.RequestID == requestID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAttachmentRepo) CategoriesByRequestID(ctx context.Context, requestID int64) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, row := range r.rows {
		if row.RequestID == requestID {
			out[row.Category]++
		}
	}
	return out, nil
}

// --- access directory ---

type fakeAccessDirectory struct {
	mu     sync.Mutex
	scopes []*entity.AccessScope
}

func newFakeAccessDirectory() *fakeAccessDirectory { return &fakeAccessDirectory{} }

func (d *fakeAccessDirectory) grant(userID string, teamID, roleID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scopes = append(d.scopes, &entity.AccessScope{
		UserID: userID,
		TeamID: teamID,
		RoleID: roleID,
		Active: true,
	})
}

func (d *fakeAccessDirectory) ActiveScopes(ctx context.Context, userID string, teamID int64) ([]*entity.AccessScope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*entity.AccessScope
	for _, scope := range d.scopes {
		if scope.Active && scope.UserID == userID && scope.TeamID == teamID {
			cp := *scope
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleID < out[j].RoleID })
	return out, nil
}

// --- events ---

type fakeDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func newFakeDispatcher() *fakeDispatcher { return &fakeDispatcher{} }

func (d *fakeDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {}

func (d *fakeDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.DispatchAsync(ctx, evt)
	return nil
}

func (d *fakeDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *fakeDispatcher) Close() error { return nil }

func (d *fakeDispatcher) byType(t event.Type) []*event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*event.Event
	for _, evt := range d.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}
