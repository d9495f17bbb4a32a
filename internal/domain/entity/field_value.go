package entity

import (
	"errors"
	"time"
)

// ErrValueSlotConflict is returned when a field value populates more or fewer
// than exactly one value slot.
var ErrValueSlotConflict = errors.New("field value must populate exactly one value slot")

// RequestFieldValue holds one submitted value for a (request, form field)
// pair. Exactly one of the typed value slots is populated; file-type fields
// are satisfied by attachment rows and never stored here.
type RequestFieldValue struct {
	ID          int64 `json:"id"`
	RequestID   int64 `json:"request_id"`
	FormFieldID int64 `json:"form_field_id"`

	NumberValue  *float64   `json:"number_value,omitempty"`
	TextValue    *string    `json:"text_value,omitempty"`
	BooleanValue *bool      `json:"boolean_value,omitempty"`
	DateValue    *time.Time `json:"date_value,omitempty"`
	OptionValue  *string    `json:"option_value,omitempty"` // structured/dropdown, JSON-encoded

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// populatedSlots counts the non-nil value slots.
func (v *RequestFieldValue) populatedSlots() int {
	n := 0
	if v.NumberValue != nil {
		n++
	}
	if v.TextValue != nil {
		n++
	}
	if v.BooleanValue != nil {
		n++
	}
	if v.DateValue != nil {
		n++
	}
	if v.OptionValue != nil {
		n++
	}
	return n
}

// Validate enforces the cross-column exclusivity invariant.
func (v *RequestFieldValue) Validate() error {
	if v.populatedSlots() != 1 {
		return ErrValueSlotConflict
	}
	return nil
}

// IsEmpty returns true when no value slot is populated.
func (v *RequestFieldValue) IsEmpty() bool {
	return v.populatedSlots() == 0
}
