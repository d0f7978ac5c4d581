package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/cobranca/internal/billing"
	"github.com/cleared-dev/cobranca/internal/cnab"
	"github.com/cleared-dev/cobranca/internal/importer"
	"github.com/cleared-dev/cobranca/internal/model"
)

func newReturnCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "return [file...]",
		Short: "Apply bank return files, by default every file in the return inbox",
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			inbox := a.path(a.cfg.Paths.ReturnInbox)

			var files []importer.FileInfo
			fromInbox := len(args) == 0
			if fromInbox {
				var err error
				if files, err = importer.Scan(inbox); err != nil {
					return err
				}
			} else {
				for _, p := range args {
					files = append(files, importer.FileInfo{Name: filepath.Base(p), Path: p})
				}
			}
			if len(files) == 0 {
				fmt.Fprintln(out, "No return files")
				return nil
			}

			failed := 0
			for _, f := range files {
				raw, err := os.ReadFile(f.Path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", f.Path, err)
				}
				report, err := a.batch.ApplyReturn(ctx, f.Name, raw)
				if report != nil && report.Run != nil {
					a.logRun(report.Run)
				}
				if err != nil {
					fmt.Fprintf(out, "%s: FAILED: %v\n", f.Name, err)
					failed++
					continue
				}

				r := report.Result
				fmt.Fprintf(out, "%s: %d events, %d settled (%s), %d skipped, %d unmatched, %d conflicting, %d failed\n",
					f.Name, report.Run.RecordCount, r.Settled, r.SettledAmount.StringFixed(2),
					r.Skipped, r.Unmatched, r.Conflicting, r.Failed)
				for _, issue := range report.Issues {
					fmt.Fprintf(out, "  %s\n", issue.Error())
				}

				if fromInbox {
					if _, err := importer.MarkProcessed(inbox, f.Name); err != nil {
						return err
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d return files failed", failed, len(files))
			}
			return nil
		}),
	}
}

func newSimulateReturnCommand(configPath *string) *cobra.Command {
	var (
		on  string
		seq int64
	)

	cmd := &cobra.Command{
		Use:   "simulate-return [number...]",
		Short: "Write a return file settling instruments, for homologation",
		Long: "Writes a return file into the return inbox that settles the given instruments,\n" +
			"or every SENT and OVERDUE instrument, at the amount the bank collects on the settlement date.",
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()

			date := billing.Today(a.clock)
			if on != "" {
				var err error
				if date, err = time.Parse(dateLayout, on); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}
			rates, err := a.cfg.InterestRates()
			if err != nil {
				return err
			}

			var instruments []model.Instrument
			if len(args) == 0 {
				if instruments, err = a.store.ListInstruments(ctx, model.StatusSent, model.StatusOverdue); err != nil {
					return err
				}
			} else {
				for _, number := range args {
					inst, err := a.store.InstrumentByNumber(ctx, number)
					if err != nil {
						return err
					}
					instruments = append(instruments, *inst)
				}
			}
			if len(instruments) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to settle")
				return nil
			}

			events := make([]cnab.Event, 0, len(instruments))
			for i := range instruments {
				inst := &instruments[i]
				// Pay what the bank would collect from the remittance instructions.
				inst.AccrueAsOf(date, rates.Collected)
				events = append(events, cnab.Event{
					ControlNumber:  inst.ControlNumber,
					CompanyUse:     inst.Number,
					Kind:           cnab.EventSettled,
					OccurrenceDate: date,
					DocumentNumber: inst.Number,
					DueDate:        inst.DueDate,
					FaceAmount:     inst.Total,
					PaidAmount:     inst.Total,
					InterestPaid:   inst.InterestAccrued.Add(inst.PenaltyAccrued),
					CreditDate:     date.AddDate(0, 0, 1),
				})
			}

			data, err := cnab.EncodeReturn(a.bank, date, seq, events)
			if err != nil {
				return err
			}
			inbox := a.path(a.cfg.Paths.ReturnInbox)
			if err := os.MkdirAll(inbox, 0o755); err != nil {
				return fmt.Errorf("creating return inbox: %w", err)
			}
			path := filepath.Join(inbox, fmt.Sprintf("CB%s%07d.RET", date.Format("20060102"), seq))
			if err := writeNew(path, data); err != nil {
				return fmt.Errorf("writing return file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d settlements\n", path, len(events))
			return nil
		}),
	}
	cmd.Flags().StringVar(&on, "date", "", "settlement date YYYY-MM-DD (default today)")
	cmd.Flags().Int64Var(&seq, "seq", 1, "return file sequence number")
	return cmd
}
