package entity

import "time"

// Form field type constants
const (
	FieldTypeNumber   = "NUMBER"
	FieldTypeText     = "TEXT"
	FieldTypeBoolean  = "BOOLEAN"
	FieldTypeDate     = "DATE"
	FieldTypeDropdown = "DROPDOWN"
	FieldTypeFile     = "FILE" // satisfied by attachments, never by a field value row
)

// FormTemplate is one version of a purchase form. Templates within a family
// (same name + team) are versioned; at most one version is active and only
// the active version is used for new routing decisions. Old versions stay
// readable for the requests that reference them.
type FormTemplate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	TeamID      int64     `json:"team_id"`
	Version     int       `json:"version"`
	Active      bool      `json:"active"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Fields []*FormField `json:"fields,omitempty"`
}

// FormField is a single field definition within a form template version.
type FormField struct {
	ID             int64     `json:"id"`
	FormTemplateID int64     `json:"form_template_id"`
	Name           string    `json:"name"`
	Label          string    `json:"label"`
	FieldType      string    `json:"field_type"`
	Required       bool      `json:"required"`
	Position       int       `json:"position"`
	Options        string    `json:"options,omitempty"` // JSON-encoded choices for DROPDOWN
	CreatedAt      time.Time `json:"created_at"`
}

// TeamPurchaseConfig maps (team, purchase type) to the active form and
// workflow template pair. At most one active row exists per pair; the row is
// repointed atomically when a new template version is created.
type TeamPurchaseConfig struct {
	ID                 int64     `json:"id"`
	TeamID             int64     `json:"team_id"`
	PurchaseType       string    `json:"purchase_type"`
	FormTemplateID     int64     `json:"form_template_id"`
	WorkflowTemplateID int64     `json:"workflow_template_id"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
