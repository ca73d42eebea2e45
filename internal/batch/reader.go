// Package batch reads reconciliation requests from CSV files and writes their outcomes.
//
// Columns are bound through a fixed table from header name to field setter. The header is
// checked once when the reader is created, so every later row is bound without lookups that
// can fail.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pds-match-service/internal/domain"
)

// Column names accepted in the header row.
const (
	ColumnIdentifier = "identifier"
	ColumnGiven      = "given"
	ColumnFamily     = "family"
	ColumnBirthDate  = "birthdate"
	ColumnGender     = "gender"
	ColumnPostalCode = "postcode"
	ColumnPhone      = "phone"
	ColumnEmail      = "email"
)

// ErrInvalidHeader is returned when the header row cannot be bound.
var ErrInvalidHeader = errors.New("invalid batch header")

type setter func(row *Row, value string)

var columnSetters = map[string]setter{
	ColumnIdentifier: func(r *Row, v string) { r.Identifier = v },
	ColumnGiven:      func(r *Row, v string) { r.Demographics.GivenName = v },
	ColumnFamily:     func(r *Row, v string) { r.Demographics.FamilyName = v },
	ColumnBirthDate:  func(r *Row, v string) { r.Demographics.BirthDate = v },
	ColumnGender: func(r *Row, v string) {
		if v == "" {
			return
		}
		g := domain.Gender(strings.ToLower(v))
		r.Demographics.Gender = &g
	},
	ColumnPostalCode: func(r *Row, v string) { r.Demographics.PostalCode = v },
	ColumnPhone:      func(r *Row, v string) { r.Demographics.Phone = v },
	ColumnEmail:      func(r *Row, v string) { r.Demographics.Email = v },
}

// Row is one reconciliation request. Line is the 1-based line number in the source.
type Row struct {
	Line         int
	Identifier   string
	Demographics domain.PersonSpecification
}

// Reader yields rows from a CSV source with a header.
type Reader struct {
	csv      *csv.Reader
	bindings []setter
	line     int
}

// NewReader reads and validates the header. The identifier column is required; unknown and
// repeated columns are rejected.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrInvalidHeader)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	bindings, err := bindHeader(header)
	if err != nil {
		return nil, err
	}
	cr.FieldsPerRecord = len(header)

	return &Reader{csv: cr, bindings: bindings, line: 1}, nil
}

func bindHeader(header []string) ([]setter, error) {
	bindings := make([]setter, len(header))
	seen := make(map[string]bool, len(header))

	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
		set, ok := columnSetters[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidHeader, raw)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidHeader, name)
		}
		seen[name] = true
		bindings[i] = set
	}

	if !seen[ColumnIdentifier] {
		return nil, fmt.Errorf("%w: missing %s column", ErrInvalidHeader, ColumnIdentifier)
	}
	return bindings, nil
}

// Next returns the next row, or io.EOF when the input is exhausted.
func (r *Reader) Next() (Row, error) {
	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		return Row{}, fmt.Errorf("failed to read line %d: %w", r.line+1, err)
	}

	line, _ := r.csv.FieldPos(0)
	r.line = line

	row := Row{Line: line}
	for i, value := range record {
		r.bindings[i](&row, strings.TrimSpace(value))
	}
	return row, nil
}
