package demographics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pds-match-service/internal/domain"
)

// DateLayout is the calendar date layout used by the registry.
const DateLayout = "2006-01-02"

var birthDatePattern = regexp.MustCompile(`^(eq|le|ge)?(\d{4}-\d{2}-\d{2})$`)

// BirthDate is a parsed birth date with the comparison operator it was submitted with.
type BirthDate struct {
	Operator domain.DateOperator
	Time     time.Time
}

// Day returns the day of the month.
func (b BirthDate) Day() int { return b.Time.Day() }

// Month returns the month number.
func (b BirthDate) Month() int { return int(b.Time.Month()) }

// String returns the calendar date without operator.
func (b BirthDate) String() string {
	return b.Time.Format(DateLayout)
}

// ParseBirthDate parses "1980-01-01" or "eq1980-01-01". A missing operator defaults to eq.
func ParseBirthDate(value string) (BirthDate, error) {
	value = strings.TrimSpace(value)
	matches := birthDatePattern.FindStringSubmatch(value)
	if matches == nil {
		return BirthDate{}, fmt.Errorf("birth date %q is not in YYYY-MM-DD format", value)
	}

	t, err := time.Parse(DateLayout, matches[2])
	if err != nil {
		return BirthDate{}, fmt.Errorf("birth date %q is not a calendar date", value)
	}

	op := domain.DateOperator(matches[1])
	if op == "" {
		op = domain.DateEqual
	}

	return BirthDate{Operator: op, Time: t}, nil
}

// CalendarDate strips any operator prefix and returns the calendar value, or false when the
// value cannot be parsed.
func CalendarDate(value string) (time.Time, bool) {
	date, err := ParseBirthDate(value)
	if err != nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// CanSwapDayMonth reports whether transposing day and month still yields a valid date,
// i.e. both are at most 12.
func (b BirthDate) CanSwapDayMonth() bool {
	return b.Day() <= 12 && b.Month() <= 12
}

// SwapDayMonth returns the date with day and month transposed. The second result is false
// when the transposition is not a valid calendar date.
func (b BirthDate) SwapDayMonth() (BirthDate, bool) {
	if !b.CanSwapDayMonth() {
		return BirthDate{}, false
	}
	swapped := time.Date(b.Time.Year(), time.Month(b.Day()), b.Month(), 0, 0, 0, 0, time.UTC)
	return BirthDate{Operator: b.Operator, Time: swapped}, true
}

// NormalizeName trims and lower-cases a name for case-insensitive comparison.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizePostalCode removes spaces and upper-cases a postcode.
func NormalizePostalCode(postalCode string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(postalCode), " ", ""))
}

// NormalizePhone removes spaces from a phone number.
func NormalizePhone(phone string) string {
	return strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
