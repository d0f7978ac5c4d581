package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/cobranca/internal/batch"
	"github.com/cleared-dev/cobranca/internal/billing"
	"github.com/cleared-dev/cobranca/internal/cnab"
	"github.com/cleared-dev/cobranca/internal/config"
	"github.com/cleared-dev/cobranca/internal/logging"
	"github.com/cleared-dev/cobranca/internal/sequence"
	"github.com/cleared-dev/cobranca/internal/store"
)

// app holds what a command needs once the project config is loaded.
type app struct {
	cfg     *config.Config
	root    string // directory of the config file; relative paths resolve here
	log     *zap.Logger
	store   *store.Store
	clock   billing.Clock
	bank    cnab.BankConfig
	billing *billing.Service
	batch   *batch.Service
}

func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return nil, fmt.Errorf("resolving project dir: %w", err)
	}

	logCfg := cfg.Log
	if logCfg.Output != "" && logCfg.Output != "stderr" && logCfg.Output != "stdout" {
		logCfg.Output = resolve(root, logCfg.Output)
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Database.DSN
	if cfg.Database.Driver == "sqlite" && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = resolve(root, dsn)
	}
	s, err := store.Open(store.Options{
		Driver:   cfg.Database.Driver,
		DSN:      dsn,
		LogLevel: cfg.Database.LogLevel,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	rates, err := cfg.InterestRates()
	if err != nil {
		s.Close()
		return nil, err
	}
	clock := billing.SystemClock{}
	alloc := sequence.NewAllocator()
	bank := bankConfig(cfg.Bank)
	return &app{
		cfg:     cfg,
		root:    root,
		log:     log,
		store:   s,
		clock:   clock,
		bank:    bank,
		billing: billing.NewService(s, alloc, clock, rates, log),
		batch:   batch.NewService(s, alloc, bank, rates, clock, log),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", zap.Error(err))
	}
	_ = a.log.Sync()
}

func (a *app) path(p string) string {
	return resolve(a.root, p)
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func bankConfig(b config.BankConfig) cnab.BankConfig {
	return cnab.BankConfig{
		Code:             b.Code,
		Name:             b.Name,
		Agency:           b.Agency,
		Account:          b.Account,
		AccountDigit:     b.AccountDigit,
		Wallet:           b.Wallet,
		BeneficiaryCode:  b.BeneficiaryCode,
		BeneficiaryName:  b.BeneficiaryName,
		BeneficiaryTaxID: b.BeneficiaryTaxID,
	}
}

// withApp opens the project for the duration of one command.
func withApp(configPath *string, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), *configPath)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}
