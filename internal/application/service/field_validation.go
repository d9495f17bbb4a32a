package service

import (
	"context"
	"fmt"

	"github.com/procurehq/approval-engine/internal/application/port"
	"github.com/procurehq/approval-engine/internal/domain/entity"
)

// fieldValidationImpl checks a request's field values and attachments against
// its frozen form template version.
type fieldValidationImpl struct {
	formRepo       port.FormTemplateRepository
	fieldValueRepo port.FieldValueRepository
	attachmentRepo port.AttachmentRepository
}

// NewFieldValidation creates a FieldValidation backed by the form template,
// field value and attachment repositories.
func NewFieldValidation(
	formRepo port.FormTemplateRepository,
	fieldValueRepo port.FieldValueRepository,
	attachmentRepo port.AttachmentRepository,
) port.FieldValidation {
	return &fieldValidationImpl{
		formRepo:       formRepo,
		fieldValueRepo: fieldValueRepo,
		attachmentRepo: attachmentRepo,
	}
}

func (v *fieldValidationImpl) RequiredFieldErrors(ctx context.Context, req *entity.PurchaseRequest) ([]string, error) {
	fields, err := v.formRepo.GetFields(ctx, req.FormTemplateID)
	if err != nil {
		return nil, fmt.Errorf("load form fields: %w", err)
	}

	values, err := v.fieldValueRepo.GetByRequestID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("load field values: %w", err)
	}

	valued := make(map[int64]bool, len(values))
	for _, val := range values {
		if !val.IsEmpty() {
			valued[val.FormFieldID] = true
		}
	}

	var missing []string
	for _, field := range fields {
		if !field.Required || field.FieldType == entity.FieldTypeFile {
			continue
		}
		if !valued[field.ID] {
			missing = append(missing, field.Name)
		}
	}
	return missing, nil
}

func (v *fieldValidationImpl) RequiredAttachmentErrors(ctx context.Context, req *entity.PurchaseRequest) ([]string, error) {
	fields, err := v.formRepo.GetFields(ctx, req.FormTemplateID)
	if err != nil {
		return nil, fmt.Errorf("load form fields: %w", err)
	}

	categories, err := v.attachmentRepo.CategoriesByRequestID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("load attachment categories: %w", err)
	}

	// FILE fields are satisfied by at least one attachment whose category is
	// the field name.
	var missing []string
	for _, field := range fields {
		if !field.Required || field.FieldType != entity.FieldTypeFile {
			continue
		}
		if categories[field.Name] == 0 {
			missing = append(missing, field.Name)
		}
	}
	return missing, nil
}
