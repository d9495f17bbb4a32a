package entity

import (
	"testing"
	"time"
)

func TestRequestFieldValue_Validate(t *testing.T) {
	num := 42.5
	text := "laptop"
	flag := true
	date := time.Now()

	tests := []struct {
		name    string
		value   RequestFieldValue
		wantErr bool
	}{
		{"number only", RequestFieldValue{NumberValue: &num}, false},
		{"text only", RequestFieldValue{TextValue: &text}, false},
		{"boolean only", RequestFieldValue{BooleanValue: &flag}, false},
		{"date only", RequestFieldValue{DateValue: &date}, false},
		{"option only", RequestFieldValue{OptionValue: &text}, false},
		{"no slots", RequestFieldValue{}, true},
		{"two slots", RequestFieldValue{NumberValue: &num, TextValue: &text}, true},
		{"three slots", RequestFieldValue{NumberValue: &num, TextValue: &text, BooleanValue: &flag}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.value.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestFieldValue_IsEmpty(t *testing.T) {
	if !(&RequestFieldValue{}).IsEmpty() {
		t.Error("empty value should report IsEmpty")
	}

	text := "x"
	if (&RequestFieldValue{TextValue: &text}).IsEmpty() {
		t.Error("populated value should not report IsEmpty")
	}
}
