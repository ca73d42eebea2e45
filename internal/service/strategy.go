package service

import (
	"strings"

	"github.com/pds-match-service/internal/domain"
	"github.com/pds-match-service/pkg/demographics"
)

// StrategyGenerator derives the ordered list of registry query variants for a specification.
// The first variant is the base fuzzy search; the rest relax it from precision towards recall.
// Generation is deterministic: the same input always yields the same variants in the same order.
type StrategyGenerator struct{}

// NewStrategyGenerator creates a new strategy generator
func NewStrategyGenerator() *StrategyGenerator {
	return &StrategyGenerator{}
}

// Generate returns a fresh slice of query variants for the specification.
func (g *StrategyGenerator) Generate(spec domain.PersonSpecification) []domain.QueryVariant {
	base := ToQueryVariant(spec)
	base.FuzzyMatch = true

	variants := []domain.QueryVariant{base}

	exact := base.Clone()
	exact.FuzzyMatch = false
	exact.ExactMatch = true
	variants = append(variants, exact)

	withoutGender := base.Clone()
	withoutGender.Gender = ""
	variants = append(variants, withoutGender)

	if swapped, ok := swapDayMonth(base); ok {
		variants = append(variants, swapped)
	}

	return variants
}

// ToQueryVariant maps the populated fields of a specification onto a query variant.
// Match flags are left unset.
func ToQueryVariant(spec domain.PersonSpecification) domain.QueryVariant {
	var q domain.QueryVariant

	if given := strings.TrimSpace(spec.GivenName); given != "" {
		q.Given = []string{given}
	}
	q.Family = strings.TrimSpace(spec.FamilyName)

	if raw := strings.TrimSpace(spec.BirthDate); raw != "" {
		if date, err := demographics.ParseBirthDate(raw); err == nil {
			q.BirthDate = []domain.BirthDateEntry{{Operator: date.Operator, Date: date.String()}}
		} else {
			q.BirthDate = []domain.BirthDateEntry{{Operator: domain.DateEqual, Date: raw}}
		}
	}

	q.Gender = spec.GenderValue()
	q.Phone = strings.TrimSpace(spec.Phone)
	q.Email = strings.TrimSpace(spec.Email)
	q.PostalCode = strings.TrimSpace(spec.PostalCode)

	return q
}

func swapDayMonth(base domain.QueryVariant) (domain.QueryVariant, bool) {
	if len(base.BirthDate) != 1 {
		return domain.QueryVariant{}, false
	}

	entry := base.BirthDate[0]
	date, err := demographics.ParseBirthDate(entry.Date)
	if err != nil {
		return domain.QueryVariant{}, false
	}

	swapped, ok := date.SwapDayMonth()
	if !ok {
		return domain.QueryVariant{}, false
	}

	variant := base.Clone()
	variant.BirthDate = []domain.BirthDateEntry{{Operator: entry.Operator, Date: swapped.String()}}
	return variant, true
}
