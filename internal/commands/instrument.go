package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/cobranca/internal/billing"
	"github.com/cleared-dev/cobranca/internal/model"
)

const dateLayout = "2006-01-02"

func parseAmount(flag, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", flag, err)
	}
	return d, nil
}

func printInstrument(w io.Writer, inst *model.Instrument) {
	fmt.Fprintf(w, "%s  control %s  %s\n", inst.Number, inst.ControlNumber, inst.Status)
	fmt.Fprintf(w, "  payer     %s (%s)\n", inst.Payer.Name, inst.Payer.TaxID)
	fmt.Fprintf(w, "  due       %s\n", inst.DueDate.Format(dateLayout))
	fmt.Fprintf(w, "  principal %s\n", inst.Principal.StringFixed(2))
	fmt.Fprintf(w, "  interest  %s\n", inst.InterestAccrued.StringFixed(2))
	fmt.Fprintf(w, "  penalty   %s\n", inst.PenaltyAccrued.StringFixed(2))
	fmt.Fprintf(w, "  discount  %s\n", inst.Discount.StringFixed(2))
	fmt.Fprintf(w, "  total     %s\n", inst.Total.StringFixed(2))
	for _, p := range inst.Payments {
		fmt.Fprintf(w, "  payment   %s %s %s %s\n", p.Number, p.Method, p.Amount.StringFixed(2), p.Status)
	}
	if inst.CancelReason != "" {
		fmt.Fprintf(w, "  reason    %s\n", inst.CancelReason)
	}
}

func newIssueCommand(configPath *string) *cobra.Command {
	var (
		payer     model.Payer
		principal string
		discount  string
		due       string
		reference string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a boleto for a fine",
		Args:  cobra.NoArgs,
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, _ []string) error {
			p, err := parseAmount("principal", principal)
			if err != nil {
				return err
			}
			d, err := parseAmount("discount", discount)
			if err != nil {
				return err
			}
			dueDate := billing.Today(a.clock).AddDate(0, 0, a.cfg.Billing.DueDays)
			if due != "" {
				if dueDate, err = time.Parse(dateLayout, due); err != nil {
					return fmt.Errorf("--due: %w", err)
				}
			}

			inst, err := a.billing.IssueInstrument(cmd.Context(), billing.IssueParams{
				FineReference: reference,
				Payer:         payer,
				Principal:     p,
				Discount:      d,
				DueDate:       dueDate,
			})
			if err != nil {
				return err
			}
			printInstrument(cmd.OutOrStdout(), inst)
			return nil
		}),
	}

	cmd.Flags().StringVar(&payer.TaxID, "payer-tax-id", "", "payer CPF or CNPJ, digits only (required)")
	cmd.Flags().StringVar(&payer.Name, "payer-name", "", "payer name (required)")
	cmd.Flags().StringVar(&payer.Address, "payer-address", "", "payer street address")
	cmd.Flags().StringVar(&payer.District, "payer-district", "", "payer district")
	cmd.Flags().StringVar(&payer.PostalCode, "payer-postal-code", "", "payer CEP, digits only")
	cmd.Flags().StringVar(&payer.City, "payer-city", "", "payer city")
	cmd.Flags().StringVar(&payer.State, "payer-state", "", "payer state (UF)")
	cmd.Flags().StringVar(&principal, "principal", "", "fine amount (required)")
	cmd.Flags().StringVar(&discount, "discount", "0", "discount granted")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD (default: today plus billing.due_days)")
	cmd.Flags().StringVar(&reference, "fine-ref", "", "reference of the fine being collected")
	_ = cmd.MarkFlagRequired("payer-tax-id")
	_ = cmd.MarkFlagRequired("payer-name")
	_ = cmd.MarkFlagRequired("principal")

	return cmd
}

func newShowCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <number>",
		Short: "Show an instrument with charges accrued to today",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, args []string) error {
			inst, err := a.billing.FindByNumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printInstrument(cmd.OutOrStdout(), inst)
			return nil
		}),
	}
}

func newCancelCommand(configPath *string) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <number>",
		Short: "Cancel an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, args []string) error {
			inst, err := a.store.InstrumentByNumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if inst, err = a.billing.Cancel(cmd.Context(), inst.ID, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", inst.Number, inst.Status)
			return nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the instrument is cancelled (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newProtestCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "protest <number>",
		Short: "Protest an overdue instrument",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, args []string) error {
			inst, err := a.store.InstrumentByNumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if inst, err = a.billing.Protest(cmd.Context(), inst.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s total %s\n", inst.Number, inst.Status, inst.Total.StringFixed(2))
			return nil
		}),
	}
}

func newOverdueCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "Mark instruments past due as OVERDUE and re-accrue charges",
		Args:  cobra.NoArgs,
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, _ []string) error {
			n, err := a.billing.RefreshOverdue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d instruments updated\n", n)
			return nil
		}),
	}
}

func newRemindCommand(configPath *string) *cobra.Command {
	var channel, note string

	cmd := &cobra.Command{
		Use:   "remind <number>",
		Short: "Record a collection reminder sent to the payer",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, args []string) error {
			inst, err := a.store.InstrumentByNumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			attempt, err := a.billing.RecordCollectionAttempt(cmd.Context(), inst.ID, model.Channel(channel), note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reminder by %s recorded\n", inst.Number, attempt.Channel)
			return nil
		}),
	}
	cmd.Flags().StringVar(&channel, "channel", string(model.ChannelEmail), "EMAIL, SMS or LETTER")
	cmd.Flags().StringVar(&note, "note", "", "free text kept with the attempt")
	return cmd
}
