// Package domain contains the core entities of the demographic matching service: the person
// specifications submitted by callers, the query variants sent to the national registry, and the
// decisions and reconciliation outcomes derived from registry results.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Gender is the administrative gender recorded against a person.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

// IsValid reports whether the gender is one of the registry enum values.
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the gender.
func (g Gender) String() string {
	return string(g)
}

// PersonSpecification is the partial personal identifying information submitted for matching.
// Every field is optional; blank fields are left out of registry queries.
type PersonSpecification struct {
	GivenName  string  `json:"given,omitempty"`
	FamilyName string  `json:"family,omitempty"`
	BirthDate  string  `json:"birthdate,omitempty"`
	Gender     *Gender `json:"gender,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	Email      string  `json:"email,omitempty"`
	PostalCode string  `json:"postcode,omitempty"`
}

// GenderValue returns the gender as a plain string, empty when not provided.
func (p PersonSpecification) GenderValue() string {
	if p.Gender == nil {
		return ""
	}
	return strings.TrimSpace(string(*p.Gender))
}

// IsBlank reports whether no field of the specification carries a value.
func (p PersonSpecification) IsBlank() bool {
	for _, v := range []string{p.GivenName, p.FamilyName, p.BirthDate, p.GenderValue(), p.Phone, p.Email, p.PostalCode} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// SearchSpecification is a match request. StrategyVersion is the algorithm version the caller
// expects the service to run; nil means the caller did not declare one.
type SearchSpecification struct {
	PersonSpecification
	StrategyVersion *int `json:"algorithmVersion,omitempty"`
}

// DateOperator is the comparison prefix on a registry birthdate parameter.
type DateOperator string

const (
	DateEqual        DateOperator = "eq"
	DateLessEqual    DateOperator = "le"
	DateGreaterEqual DateOperator = "ge"
)

// IsValid reports whether the operator is supported by the registry.
func (o DateOperator) IsValid() bool {
	switch o {
	case DateEqual, DateLessEqual, DateGreaterEqual:
		return true
	default:
		return false
	}
}

// BirthDateEntry is one birthdate constraint of a query variant.
type BirthDateEntry struct {
	Operator DateOperator `json:"operator"`
	Date     string       `json:"date"`
}

// String renders the entry in registry parameter form, e.g. "eq1980-01-01".
func (b BirthDateEntry) String() string {
	return string(b.Operator) + b.Date
}

// QueryVariant is one concrete parameterisation of a registry search.
// Only populated fields are serialised.
type QueryVariant struct {
	FuzzyMatch bool             `json:"fuzzyMatch,omitempty"`
	ExactMatch bool             `json:"exactMatch,omitempty"`
	Given      []string         `json:"given,omitempty"`
	Family     string           `json:"family,omitempty"`
	BirthDate  []BirthDateEntry `json:"birthdate,omitempty"`
	Gender     string           `json:"gender,omitempty"`
	Phone      string           `json:"phone,omitempty"`
	Email      string           `json:"email,omitempty"`
	PostalCode string           `json:"postcode,omitempty"`
}

// Clone returns a deep copy so relaxations never share slices with the base variant.
func (q QueryVariant) Clone() QueryVariant {
	c := q
	if q.Given != nil {
		c.Given = append([]string(nil), q.Given...)
	}
	if q.BirthDate != nil {
		c.BirthDate = append([]BirthDateEntry(nil), q.BirthDate...)
	}
	return c
}

// SearchOutcome is the registry's answer to a single query variant.
type SearchOutcome string

const (
	OutcomeMatched      SearchOutcome = "Matched"
	OutcomeUnmatched    SearchOutcome = "Unmatched"
	OutcomeMultiMatched SearchOutcome = "MultiMatched"
	OutcomeError        SearchOutcome = "Error"
)

// RegistrySearchResult is the outcome of executing one query variant.
type RegistrySearchResult struct {
	Outcome  SearchOutcome  `json:"outcome"`
	RecordID string         `json:"recordId,omitempty"`
	Score    float64        `json:"score,omitempty"`
	Message  string         `json:"message,omitempty"`
	Record   *PatientRecord `json:"-"`
}

// Matched builds a Matched result.
func Matched(recordID string, score float64) RegistrySearchResult {
	return RegistrySearchResult{Outcome: OutcomeMatched, RecordID: recordID, Score: score}
}

// Unmatched builds an Unmatched result.
func Unmatched() RegistrySearchResult {
	return RegistrySearchResult{Outcome: OutcomeUnmatched}
}

// MultiMatched builds a MultiMatched result.
func MultiMatched() RegistrySearchResult {
	return RegistrySearchResult{Outcome: OutcomeMultiMatched}
}

// SearchError builds an Error result carrying the failure message.
func SearchError(message string) RegistrySearchResult {
	return RegistrySearchResult{Outcome: OutcomeError, Message: message}
}

// MatchStatus is the canonical outcome of a match attempt.
type MatchStatus string

const (
	StatusMatch              MatchStatus = "Match"
	StatusPotentialMatch     MatchStatus = "PotentialMatch"
	StatusLowConfidenceMatch MatchStatus = "LowConfidenceMatch"
	StatusManyMatch          MatchStatus = "ManyMatch"
	StatusNoMatch            MatchStatus = "NoMatch"
	StatusError              MatchStatus = "Error"
)

// IsValid reports whether the status is one of the six canonical values.
func (s MatchStatus) IsValid() bool {
	switch s {
	case StatusMatch, StatusPotentialMatch, StatusLowConfidenceMatch, StatusManyMatch, StatusNoMatch, StatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s MatchStatus) String() string {
	return string(s)
}

// Process stages reported alongside a decision.
const (
	StageValidation = "validation"
	StageSearch     = "search"
)

// MatchDecision is the result of running the strategy sequence against the registry.
type MatchDecision struct {
	Status       MatchStatus `json:"matchStatus"`
	Identifier   string      `json:"identifier,omitempty"`
	Score        *float64    `json:"score,omitempty"`
	VariantIndex int         `json:"variantIndex"`
	ProcessStage string      `json:"processStage,omitempty"`
	Message      string      `json:"message,omitempty"`
}

// LogFields returns structured logging fields for the decision. Identifiers are included,
// demographics never are.
func (d MatchDecision) LogFields() map[string]any {
	fields := map[string]any{
		"match_status":  d.Status.String(),
		"variant_index": d.VariantIndex,
	}
	if d.Score != nil {
		fields["score"] = *d.Score
	}
	if d.ProcessStage != "" {
		fields["process_stage"] = d.ProcessStage
	}
	return fields
}

// DataQuality classifies a single input field.
type DataQuality string

const (
	QualityValid       DataQuality = "Valid"
	QualityInvalid     DataQuality = "Invalid"
	QualityNotProvided DataQuality = "NotProvided"
)

// DataQualityReport holds the quality of every input field.
type DataQualityReport struct {
	Given             DataQuality `json:"given"`
	Family            DataQuality `json:"family"`
	BirthDate         DataQuality `json:"birthdate"`
	AddressPostalCode DataQuality `json:"addressPostalCode"`
	Phone             DataQuality `json:"phone"`
	Email             DataQuality `json:"email"`
	Gender            DataQuality `json:"gender"`
}

// Field names shared by the data quality report and the field comparer.
const (
	FieldGiven      = "given"
	FieldFamily     = "family"
	FieldBirthDate  = "birthdate"
	FieldPostalCode = "addressPostalCode"
	FieldPhone      = "phone"
	FieldEmail      = "email"
	FieldGender     = "gender"
)

// Fields returns the report as an ordered list of (field, quality) pairs.
func (r DataQualityReport) Fields() []FieldQuality {
	return []FieldQuality{
		{FieldGiven, r.Given},
		{FieldFamily, r.Family},
		{FieldBirthDate, r.BirthDate},
		{FieldPostalCode, r.AddressPostalCode},
		{FieldPhone, r.Phone},
		{FieldEmail, r.Email},
		{FieldGender, r.Gender},
	}
}

// InvalidFields lists the fields classified Invalid.
func (r DataQualityReport) InvalidFields() []string {
	var invalid []string
	for _, f := range r.Fields() {
		if f.Quality == QualityInvalid {
			invalid = append(invalid, f.Field)
		}
	}
	return invalid
}

// HasInvalid reports whether any field was classified Invalid.
func (r DataQualityReport) HasInvalid() bool {
	return len(r.InvalidFields()) > 0
}

// FieldQuality pairs a field name with its quality.
type FieldQuality struct {
	Field   string
	Quality DataQuality
}

// MatchResponse is the full answer to a match request.
type MatchResponse struct {
	Decision    MatchDecision     `json:"result"`
	DataQuality DataQualityReport `json:"dataQuality"`
}

// PatientRecord is a person record returned by the registry.
type PatientRecord struct {
	ID          string   `json:"id"`
	GivenNames  []string `json:"givenNames,omitempty"`
	FamilyName  string   `json:"familyName,omitempty"`
	BirthDate   string   `json:"birthDate,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	PostalCodes []string `json:"postalCodes,omitempty"`
	Phones      []string `json:"phones,omitempty"`
	Emails      []string `json:"emails,omitempty"`
}

// ReconciliationStatus is the outcome of re-verifying an identifier.
type ReconciliationStatus string

const (
	ReconcileNoDifferences        ReconciliationStatus = "NoDifferences"
	ReconcileOneDifference        ReconciliationStatus = "OneDifference"
	ReconcileManyDifferences      ReconciliationStatus = "ManyDifferences"
	ReconcileSupersededIdentifier ReconciliationStatus = "SupersededIdentifier"
	ReconcileMissingIdentifier    ReconciliationStatus = "MissingIdentifier"
	ReconcileInvalidIdentifier    ReconciliationStatus = "InvalidIdentifier"
	ReconcileRecordNotFound       ReconciliationStatus = "RecordNotFound"
	ReconcileError                ReconciliationStatus = "Error"
)

// IsValid reports whether the status is a known reconciliation outcome.
func (s ReconciliationStatus) IsValid() bool {
	switch s {
	case ReconcileNoDifferences, ReconcileOneDifference, ReconcileManyDifferences,
		ReconcileSupersededIdentifier, ReconcileMissingIdentifier, ReconcileInvalidIdentifier,
		ReconcileRecordNotFound, ReconcileError:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s ReconciliationStatus) String() string {
	return string(s)
}

// ReconciliationRecord captures one re-verification of a previously assigned identifier.
type ReconciliationRecord struct {
	ID                    string               `json:"id"`
	Identifier            string               `json:"identifier"`
	Demographics          PersonSpecification  `json:"demographics"`
	Differences           []string             `json:"differences,omitempty"`
	Unused                []string             `json:"unused,omitempty"`
	Status                ReconciliationStatus `json:"status"`
	ReplacementIdentifier string               `json:"replacementIdentifier,omitempty"`
	Message               string               `json:"message,omitempty"`
	CreatedAt             time.Time            `json:"createdAt"`
}

// AlgorithmVersionState is the persisted drift-tracking state of the strategy generator.
type AlgorithmVersionState struct {
	Version      int    `json:"version"`
	CurrentHash  string `json:"hash"`
	PreviousHash string `json:"previousHash"`
}

// String renders the state for logs and CLI output.
func (s AlgorithmVersionState) String() string {
	return fmt.Sprintf("version=%d hash=%s previous=%s", s.Version, s.CurrentHash, s.PreviousHash)
}
