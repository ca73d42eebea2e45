package service

import (
	"strings"

	"github.com/pds-match-service/internal/domain"
	"github.com/pds-match-service/pkg/demographics"
)

// DataQualityAssessor classifies each submitted field as Valid, Invalid or NotProvided.
type DataQualityAssessor struct {
	validator *demographics.Validator
}

// NewDataQualityAssessor creates a new data quality assessor
func NewDataQualityAssessor() *DataQualityAssessor {
	return &DataQualityAssessor{validator: demographics.NewValidator()}
}

// Assess produces the per-field quality report for a specification.
func (a *DataQualityAssessor) Assess(spec domain.PersonSpecification) domain.DataQualityReport {
	return domain.DataQualityReport{
		Given:             quality(spec.GivenName, func(v string) error { return a.validator.ValidateName(domain.FieldGiven, v) }),
		Family:            quality(spec.FamilyName, func(v string) error { return a.validator.ValidateName(domain.FieldFamily, v) }),
		BirthDate:         quality(spec.BirthDate, a.validator.ValidateBirthDate),
		AddressPostalCode: quality(spec.PostalCode, a.validator.ValidatePostalCode),
		Phone:             quality(spec.Phone, a.validator.ValidatePhone),
		Email:             quality(spec.Email, a.validator.ValidateEmail),
		Gender:            quality(spec.GenderValue(), a.validator.ValidateGender),
	}
}

func quality(value string, validate func(string) error) domain.DataQuality {
	if strings.TrimSpace(value) == "" {
		return domain.QualityNotProvided
	}
	if err := validate(value); err != nil {
		return domain.QualityInvalid
	}
	return domain.QualityValid
}
