package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/cobranca/internal/config"
	"github.com/cleared-dev/cobranca/internal/importer"
)

func newInitCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new billing project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd, absDir, name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "beneficiary name printed on the bank files (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runInit(cmd *cobra.Command, dir, name string) error {
	configPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	cfg := config.Default(name)
	dirs := []string{
		cfg.Paths.RemittanceDir,
		cfg.Paths.ReturnInbox,
		filepath.Join(cfg.Paths.ReturnInbox, importer.ProcessedDir),
		"logs",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(configPath, cfg); err != nil {
		return err
	}

	// Opening the project creates the schema.
	a, err := openApp(cmd.Context(), configPath)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized billing project at %s\n", dir)
	return nil
}
