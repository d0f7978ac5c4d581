package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/cobranca/internal/model"
)

func newRunsCommand(configPath *string) *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List batch runs, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, _ []string) error {
			runs, err := a.store.ListBatchRuns(cmd.Context(), model.Direction(direction))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-8s %-9s seq %d  %d records  %s  %s\n",
					r.ID, r.Direction, r.Status, r.SequenceNumber, r.RecordCount, r.TotalAmount.StringFixed(2), r.FileName)
				if r.ErrorDetail != nil {
					fmt.Fprintf(out, "    %s\n", *r.ErrorDetail)
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&direction, "direction", "", "OUTBOUND or INBOUND (default both)")

	cmd.AddCommand(
		newRunMoveCommand(configPath, "mark-sent", "Record that a generated remittance was delivered to the bank", markSent),
		newRunMoveCommand(configPath, "cancel", "Cancel a run that was not generated or processed", cancelRun),
	)
	return cmd
}

func markSent(cmd *cobra.Command, a *app, id uuid.UUID) (*model.BatchRun, error) {
	return a.batch.MarkSent(cmd.Context(), id)
}

func cancelRun(cmd *cobra.Command, a *app, id uuid.UUID) (*model.BatchRun, error) {
	return a.batch.Cancel(cmd.Context(), id)
}

func newRunMoveCommand(configPath *string, use, short string, move func(*cobra.Command, *app, uuid.UUID) (*model.BatchRun, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <run-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("run id: %w", err)
			}
			run, err := move(cmd, a, id)
			if err != nil {
				return err
			}
			a.logRun(run)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", run.ID, run.Status)
			return nil
		}),
	}
}
