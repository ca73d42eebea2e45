package demographics

import (
	"strings"
	"testing"
	"time"

	"github.com/pds-match-service/internal/domain"
)

func TestValidateName(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"Simple name", "Smith", false},
		{"Apostrophe", "O'Neil", false},
		{"Hyphenated", "Smith-Jones", false},
		{"Inner space", "Mary Ann", false},
		{"Initial with full stop", "J.", false},
		{"Accented letters", "Zoë", false},
		{"Exactly twenty characters", strings.Repeat("a", 20), false},
		{"Empty name (optional)", "", false},

		{"Too long", strings.Repeat("a", 21), true},
		{"Digits", "Sm1th", true},
		{"Leading hyphen", "-Smith", true},
		{"Symbols", "Smith!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateName(domain.FieldFamily, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBirthDate(t *testing.T) {
	validator := NewValidator()
	validator.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"Plain date", "1980-01-01", false},
		{"Equal prefix", "eq1980-01-01", false},
		{"Less or equal prefix", "le1980-01-01", false},
		{"Greater or equal prefix", "ge1980-01-01", false},
		{"Leap day", "2000-02-29", false},
		{"Today", "2024-06-01", false},
		{"Empty date (optional)", "", false},

		{"Future date", "2024-06-02", true},
		{"Not a calendar date", "1980-02-30", true},
		{"Month out of range", "1980-13-01", true},
		{"Wrong layout", "01/01/1980", true},
		{"Unsupported prefix", "gt1980-01-01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateBirthDate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBirthDate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePhone(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"National number", "01632960001", false},
		{"International with spaces", "+44 7700 900123", false},
		{"Seven digits", "1234567", false},
		{"Sixteen digits", "1234567890123456", false},
		{"Empty phone (optional)", "", false},

		{"Too short", "123456", true},
		{"Too long", "12345678901234567", true},
		{"Letters", "0163296000A", true},
		{"Dashes", "01632-960001", true},
		{"Plus in the middle", "44+7700900123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidatePhone(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePhone() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"Simple address", "jane.smith@example.com", false},
		{"Plus addressing", "jane+nhs@example.co.uk", false},
		{"Empty email (optional)", "", false},

		{"Missing at", "jane.example.com", true},
		{"Missing domain", "jane@", true},
		{"Missing tld", "jane@example", true},
		{"Too long", strings.Repeat("a", 250) + "@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateEmail(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePostalCode(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"Standard", "LS1 6AE", false},
		{"No space", "LS16AE", false},
		{"Lower case", "ls1 6ae", false},
		{"London sub-district", "SW1A 1AA", false},
		{"Single letter area", "M1 1AE", false},
		{"Empty postcode (optional)", "", false},

		{"US zip", "90210", true},
		{"Missing inward code", "LS1", true},
		{"Digit area", "1S1 6AE", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidatePostalCode(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePostalCode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateGender(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		value   string
		wantErr bool
	}{
		{"male", false},
		{"female", false},
		{"other", false},
		{"unknown", false},
		{"", false},
		{"M", true},
		{"Female", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := validator.ValidateGender(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGender() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSpecification(t *testing.T) {
	validator := NewValidator()
	bad := domain.Gender("M")

	errs := validator.ValidateSpecification(domain.PersonSpecification{
		GivenName:  "Jane",
		FamilyName: "Sm1th",
		BirthDate:  "1980-01-01",
		Gender:     &bad,
		PostalCode: "LS1 6AE",
	})

	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d: %v", len(errs), errs)
	}

	first, ok := errs[0].(*domain.ValidationError)
	if !ok || first.Field != domain.FieldFamily {
		t.Errorf("Expected first error on family, got %v", errs[0])
	}
	second, ok := errs[1].(*domain.ValidationError)
	if !ok || second.Field != domain.FieldGender {
		t.Errorf("Expected second error on gender, got %v", errs[1])
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"Valid", "9000000009", false},
		{"Valid second", "9000000017", false},
		{"Valid with spaces", "900 000 0025", false},
		{"Check digit zero", "9434765870", false},

		{"Empty", "", true},
		{"Wrong check digit", "9000000000", true},
		{"Too short", "900000000", true},
		{"Too long", "90000000091", true},
		{"Non numeric", "90000000A9", true},
		{"Check digit of ten", "1234567890", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
