package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/reports"
	"github.com/greengold/nexus/internal/settings"
)

func newExportCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write reports to files",
	}
	var out, from, to, kind string
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Export ledger entries as an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return fmt.Errorf("%w: --out", errMissingFlag)
			}
			f := ledger.Filter{Kind: ledger.Kind(kind)}
			var err error
			if f.From, err = parseDay(from); err != nil {
				return err
			}
			if f.To, err = parseDay(to); err != nil {
				return err
			}
			pool, err := e.db(cmd.Context())
			if err != nil {
				return err
			}
			store := settings.NewStore(settings.NewRepository(pool), nil, nil, e.logger)
			if err := store.Load(cmd.Context()); err != nil {
				return err
			}
			svc := reports.NewService(ledger.NewQueries(pool), customers.NewQueries(pool), store, nil)
			entries, names, err := svc.LedgerExport(cmd.Context(), f)
			if err != nil {
				return err
			}
			file, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := reports.WriteLedgerXLSX(file, entries, names, svc.Settings()); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries to %s\n", len(entries), out)
			return nil
		},
	}
	ledgerCmd.Flags().StringVarP(&out, "out", "o", "", "destination .xlsx path")
	ledgerCmd.Flags().StringVar(&from, "from", "", "first day to include (YYYY-MM-DD)")
	ledgerCmd.Flags().StringVar(&to, "to", "", "last day to include (YYYY-MM-DD)")
	ledgerCmd.Flags().StringVar(&kind, "type", "", "income or expense")
	cmd.AddCommand(ledgerCmd)
	return cmd
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
