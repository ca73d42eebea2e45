// Package demographics holds the format contracts for the personal identifying fields accepted
// by the matching service, plus helpers to normalise them before comparison.
package demographics

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pds-match-service/internal/domain"
)

// MaxNameLength is the longest given or family name accepted.
const MaxNameLength = 20

// MaxEmailLength is the longest email address accepted.
const MaxEmailLength = 254

// Field format patterns
var (
	// Letters with inner spaces, apostrophes, hyphens and full stops: "O'Neil", "Smith-Jones"
	namePattern = regexp.MustCompile(`^\p{L}[\p{L} '.\-]*$`)

	// Digits with optional leading plus and inner spaces: "+44 7700 900123", "01632960001"
	phonePattern = regexp.MustCompile(`^\+?\d[\d ]*\d$`)

	emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)

	// UK postcode, upper-cased before matching: "LS1 6AE", "SW1A1AA"
	postalCodePattern = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]? ?[0-9][A-Z]{2}$`)
)

// Validator checks personal identifying fields against their format contracts.
// A blank value is never an error here: absence is reported separately as NotProvided.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a new demographics validator
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// ValidateName validates a given or family name
func (v *Validator) ValidateName(field, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		return domain.NewValidationError(field, "Name exceeds maximum length", name)
	}

	if !namePattern.MatchString(name) {
		return domain.NewValidationError(field, "Invalid name format", name)
	}

	return nil
}

// ValidateBirthDate validates a birth date, optionally carrying an eq/le/ge prefix
func (v *Validator) ValidateBirthDate(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	date, err := ParseBirthDate(value)
	if err != nil {
		return domain.NewValidationError(domain.FieldBirthDate, err.Error(), value)
	}

	if date.Time.After(v.now()) {
		return domain.NewValidationError(domain.FieldBirthDate, "Birth date is in the future", value)
	}

	return nil
}

// ValidatePhone validates a phone number
func (v *Validator) ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}

	if !phonePattern.MatchString(phone) {
		return domain.NewValidationError(domain.FieldPhone, "Invalid phone number format", phone)
	}

	digits := len(NormalizePhone(strings.TrimPrefix(phone, "+")))
	if digits < 7 || digits > 16 {
		return domain.NewValidationError(domain.FieldPhone, "Phone number must have between 7 and 16 digits", phone)
	}

	return nil
}

// ValidateEmail validates an email address
func (v *Validator) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}

	if len(email) > MaxEmailLength || !emailPattern.MatchString(email) {
		return domain.NewValidationError(domain.FieldEmail, "Invalid email format", email)
	}

	return nil
}

// ValidatePostalCode validates a UK postcode
func (v *Validator) ValidatePostalCode(postalCode string) error {
	postalCode = strings.TrimSpace(postalCode)
	if postalCode == "" {
		return nil
	}

	if !postalCodePattern.MatchString(strings.ToUpper(postalCode)) {
		return domain.NewValidationError(domain.FieldPostalCode, "Invalid postcode format", postalCode)
	}

	return nil
}

// ValidateGender validates an administrative gender value
func (v *Validator) ValidateGender(gender string) error {
	gender = strings.TrimSpace(gender)
	if gender == "" {
		return nil
	}

	if !domain.Gender(gender).IsValid() {
		return domain.NewValidationError(domain.FieldGender, "Gender must be one of male, female, other, unknown", gender)
	}

	return nil
}

// ValidateSpecification validates every field of a person specification
func (v *Validator) ValidateSpecification(spec domain.PersonSpecification) []error {
	var errors []error

	checks := []error{
		v.ValidateName(domain.FieldGiven, spec.GivenName),
		v.ValidateName(domain.FieldFamily, spec.FamilyName),
		v.ValidateBirthDate(spec.BirthDate),
		v.ValidatePostalCode(spec.PostalCode),
		v.ValidatePhone(spec.Phone),
		v.ValidateEmail(spec.Email),
		v.ValidateGender(spec.GenderValue()),
	}
	for _, err := range checks {
		if err != nil {
			errors = append(errors, err)
		}
	}

	return errors
}
