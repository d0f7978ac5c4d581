package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/cobranca/internal/model"
	"github.com/cleared-dev/cobranca/internal/runlog"
)

// logRun appends run to the project's CSV run log. A failure to log does
// not fail the command.
func (a *app) logRun(run *model.BatchRun) {
	if err := runlog.Append(a.root, []runlog.Entry{runlog.FromRun(run, a.clock.Now())}); err != nil {
		a.log.Warn("writing run log", zap.String("run", run.ID.String()), zap.Error(err))
	}
}

// writeNew writes data to path, failing if the file already exists.
func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newRemitCommand(configPath *string) *cobra.Command {
	var sent bool

	cmd := &cobra.Command{
		Use:   "remit",
		Short: "Write a remittance file with every PENDING instrument",
		Args:  cobra.NoArgs,
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			pending, err := a.batch.PendingInstruments(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(out, "Nothing to remit")
				return nil
			}

			run, data, err := a.batch.GenerateRemittance(ctx, pending)
			if run != nil {
				defer a.logRun(run)
			}
			if err != nil {
				return err
			}

			dir := a.path(a.cfg.Paths.RemittanceDir)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating remittance dir: %w", err)
			}
			path := filepath.Join(dir, run.FileName)
			if err := writeNew(path, data); err != nil {
				return fmt.Errorf("writing remittance: %w", err)
			}

			if sent {
				marked, err := a.batch.MarkSent(ctx, run.ID)
				if err != nil {
					return err
				}
				*run = *marked
			}
			fmt.Fprintf(out, "%s: %d instruments, total %s, run %s %s\n",
				path, run.RecordCount, run.TotalAmount.StringFixed(2), run.ID, run.Status)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&sent, "sent", false, "mark the run SENT once the file is written")
	return cmd
}
