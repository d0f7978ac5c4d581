package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/cobranca/internal/buildinfo"
	"github.com/cleared-dev/cobranca/internal/config"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "cobranca",
		Short:   "Boleto billing for administrative fines",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.FileName, "path to "+config.FileName)

	rootCmd.AddCommand(
		newInitCommand(),
		newIssueCommand(&configPath),
		newShowCommand(&configPath),
		newCancelCommand(&configPath),
		newProtestCommand(&configPath),
		newOverdueCommand(&configPath),
		newRemindCommand(&configPath),
		newPayCommand(&configPath),
		newConfirmPaymentCommand(&configPath),
		newReversePaymentCommand(&configPath),
		newRemitCommand(&configPath),
		newReturnCommand(&configPath),
		newSimulateReturnCommand(&configPath),
		newRunsCommand(&configPath),
	)

	return rootCmd
}
