package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pds-match-service/internal/batch"
	"github.com/pds-match-service/internal/domain"
)

const defaultWorkers = 4

func (c *cli) newReconcileFileCommand() *cobra.Command {
	var (
		output  string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "reconcile-file CSV",
		Short: "Reconcile every identifier in a CSV file against the registry",
		Long: `Reconcile every row of a CSV file. The header names the columns; identifier is
required and given, family, birthdate, gender, postcode, phone and email are optional.

One result row is written per input row, in input order. Outcomes such as
RecordNotFound or SupersededIdentifier are results, not failures.

Examples:
  matchctl reconcile-file patients.csv --output results.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 {
				return fmt.Errorf("--workers must be at least 1")
			}

			in, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open input: %w", err)
			}
			defer in.Close()

			rows, err := readRows(in)
			if err != nil {
				return err
			}

			a, err := c.loadApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			results := make([]*domain.ReconciliationRecord, len(rows))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(workers)
			for i, row := range rows {
				g.Go(func() error {
					record, err := a.Reconciler.Reconcile(ctx, row.Identifier, row.Demographics)
					if err != nil {
						return fmt.Errorf("line %d: %w", row.Line, err)
					}
					results[i] = record
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			if err := writeResults(out, rows, results); err != nil {
				return err
			}

			summary := summarise(results)
			success.Fprintf(cmd.ErrOrStderr(), "reconciled %d rows\n", len(results))
			for _, status := range reconciliationStatuses {
				if n := summary[status]; n > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %-22s %d\n", status, n)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write results to this file instead of stdout")
	cmd.Flags().IntVar(&workers, "workers", defaultWorkers, "number of concurrent reconciliations")

	return cmd
}

func readRows(r io.Reader) ([]batch.Row, error) {
	reader, err := batch.NewReader(r)
	if err != nil {
		return nil, err
	}

	var rows []batch.Row
	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func writeResults(w io.Writer, rows []batch.Row, results []*domain.ReconciliationRecord) error {
	writer, err := batch.NewWriter(w)
	if err != nil {
		return err
	}
	for i, record := range results {
		if err := writer.Write(rows[i].Line, record); err != nil {
			return err
		}
	}
	return writer.Flush()
}

var reconciliationStatuses = []domain.ReconciliationStatus{
	domain.ReconcileNoDifferences,
	domain.ReconcileOneDifference,
	domain.ReconcileManyDifferences,
	domain.ReconcileSupersededIdentifier,
	domain.ReconcileMissingIdentifier,
	domain.ReconcileInvalidIdentifier,
	domain.ReconcileRecordNotFound,
	domain.ReconcileError,
}

func summarise(results []*domain.ReconciliationRecord) map[domain.ReconciliationStatus]int {
	summary := make(map[domain.ReconciliationStatus]int)
	for _, record := range results {
		summary[record.Status]++
	}
	return summary
}
