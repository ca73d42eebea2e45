package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pds-match-service/internal/domain"
)

var resultHeader = []string{"line", "identifier", "status", "replacement_identifier", "differences", "unused", "message", "record_id"}

// Writer writes reconciliation outcomes as CSV. Demographics are not written back.
type Writer struct {
	csv *csv.Writer
}

// NewWriter writes the result header.
func NewWriter(w io.Writer) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return &Writer{csv: cw}, nil
}

// Write appends the outcome for one input row.
func (w *Writer) Write(line int, record *domain.ReconciliationRecord) error {
	err := w.csv.Write([]string{
		strconv.Itoa(line),
		record.Identifier,
		string(record.Status),
		record.ReplacementIdentifier,
		strings.Join(record.Differences, ";"),
		strings.Join(record.Unused, ";"),
		record.Message,
		record.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to write line %d: %w", line, err)
	}
	return nil
}

// Flush writes buffered rows and reports any write error.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}
