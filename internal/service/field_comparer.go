package service

import (
	"strings"

	"github.com/pds-match-service/internal/domain"
	"github.com/pds-match-service/pkg/demographics"
)

// FieldComparison lists the submitted fields that disagree with a registry record and the
// fields that were not submitted at all. Names use the data quality report keys.
type FieldComparison struct {
	Differences []string `json:"differences"`
	Unused      []string `json:"unused"`
}

// FieldComparer diffs the fields of a query variant against a registry record.
type FieldComparer struct{}

// NewFieldComparer creates a new field comparer
func NewFieldComparer() *FieldComparer {
	return &FieldComparer{}
}

type fieldCheck struct {
	field     string
	submitted bool
	matches   func() bool
}

// Compare reports, in a fixed field order, which submitted values differ from the record.
func (c *FieldComparer) Compare(submitted domain.QueryVariant, record *domain.PatientRecord) FieldComparison {
	if record == nil {
		record = &domain.PatientRecord{}
	}

	checks := []fieldCheck{
		{domain.FieldGiven, len(submitted.Given) > 0, func() bool { return givenNamesMatch(submitted.Given, record.GivenNames) }},
		{domain.FieldFamily, submitted.Family != "", func() bool { return namesEqual(submitted.Family, record.FamilyName) }},
		{domain.FieldBirthDate, len(submitted.BirthDate) > 0, func() bool { return birthDatesMatch(submitted.BirthDate, record.BirthDate) }},
		{domain.FieldGender, submitted.Gender != "", func() bool { return namesEqual(submitted.Gender, record.Gender) }},
		{domain.FieldPostalCode, submitted.PostalCode != "", func() bool {
			return containsNormalized(record.PostalCodes, submitted.PostalCode, demographics.NormalizePostalCode)
		}},
		{domain.FieldPhone, submitted.Phone != "", func() bool {
			return containsNormalized(record.Phones, submitted.Phone, demographics.NormalizePhone)
		}},
		{domain.FieldEmail, submitted.Email != "", func() bool {
			return containsNormalized(record.Emails, submitted.Email, demographics.NormalizeEmail)
		}},
	}

	comparison := FieldComparison{Differences: []string{}, Unused: []string{}}
	for _, check := range checks {
		switch {
		case !check.submitted:
			comparison.Unused = append(comparison.Unused, check.field)
		case !check.matches():
			comparison.Differences = append(comparison.Differences, check.field)
		}
	}

	return comparison
}

func namesEqual(a, b string) bool {
	return demographics.NormalizeName(a) == demographics.NormalizeName(b)
}

// Every submitted given name must appear among the record's given names.
func givenNamesMatch(submitted, record []string) bool {
	for _, name := range submitted {
		if !containsNormalized(record, name, demographics.NormalizeName) {
			return false
		}
	}
	return true
}

func containsNormalized(values []string, want string, normalize func(string) string) bool {
	target := normalize(want)
	for _, v := range values {
		if normalize(v) == target {
			return true
		}
	}
	return false
}

func birthDatesMatch(entries []domain.BirthDateEntry, recorded string) bool {
	recordDate, ok := demographics.CalendarDate(recorded)
	if !ok {
		return false
	}
	for _, entry := range entries {
		submitted, ok := demographics.CalendarDate(strings.TrimSpace(entry.Date))
		if !ok || !submitted.Equal(recordDate) {
			return false
		}
	}
	return true
}
