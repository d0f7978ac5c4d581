package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/cobranca/internal/model"
)

func newPayCommand(configPath *string) *cobra.Command {
	var amount, method string

	cmd := &cobra.Command{
		Use:   "pay <number>",
		Short: "Register a payment received outside the bank file",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, args []string) error {
			amt, err := parseAmount("amount", amount)
			if err != nil {
				return err
			}
			inst, err := a.store.InstrumentByNumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pay, err := a.billing.RegisterManualPayment(cmd.Context(), inst.ID, amt, model.PaymentMethod(strings.ToUpper(method)))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s on %s\n", pay.Number, pay.Status, pay.Amount.StringFixed(2), inst.Number)
			return nil
		}),
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount received (required)")
	cmd.Flags().StringVar(&method, "method", string(model.MethodPIX), "PIX, CASH, TRANSFER or BOLETO")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newConfirmPaymentCommand(configPath *string) *cobra.Command {
	var reject bool

	cmd := &cobra.Command{
		Use:   "confirm-payment <payment-number>",
		Short: "Confirm, or with --reject refuse, a pending payment",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, args []string) error {
			pay, err := a.store.PaymentByNumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if reject {
				if pay, err = a.billing.RejectPayment(cmd.Context(), pay.ID); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s\n", pay.Number, pay.Status)
				return nil
			}
			pay, inst, err := a.billing.ConfirmPayment(cmd.Context(), pay.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s, instrument %s %s\n", pay.Number, pay.Status, inst.Number, inst.Status)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "mark the payment as not received")
	return cmd
}

func newReversePaymentCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reverse-payment <payment-number>",
		Short: "Reverse a confirmed payment on an unpaid instrument",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(cmd *cobra.Command, a *app, args []string) error {
			pay, err := a.store.PaymentByNumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if pay, err = a.billing.ReversePayment(cmd.Context(), pay.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", pay.Number, pay.Status)
			return nil
		}),
	}
}
