package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/cobranca/internal/interest"
	"github.com/cleared-dev/cobranca/internal/logging"
)

// FileName is the config file created by init in the working directory.
const FileName = "cobranca.yaml"

// EnvPrefix prefixes environment overrides, e.g. COBRANCA_DATABASE_DSN.
const EnvPrefix = "COBRANCA"

// Config represents the top-level cobranca.yaml configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      logging.Config `yaml:"log"`
	Bank     BankConfig     `yaml:"bank"`
	Rates    RatesConfig    `yaml:"rates"`
	Billing  BillingConfig  `yaml:"billing"`
	Paths    PathsConfig    `yaml:"paths"`
}

// DatabaseConfig selects the gorm dialect and connection.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite or postgres
	DSN      string `yaml:"dsn"`
	LogLevel string `yaml:"log_level"`
}

// BankConfig identifies the beneficiary's collection account.
type BankConfig struct {
	Code             string `yaml:"code"`
	Name             string `yaml:"name"`
	Agency           string `yaml:"agency"`
	Account          string `yaml:"account"`
	AccountDigit     string `yaml:"account_digit"`
	Wallet           string `yaml:"wallet"`
	BeneficiaryCode  string `yaml:"beneficiary_code"`
	BeneficiaryName  string `yaml:"beneficiary_name"`
	BeneficiaryTaxID string `yaml:"beneficiary_tax_id"`
}

// RatesConfig holds late-payment rates as decimal strings, e.g. "0.01".
type RatesConfig struct {
	MonthlyInterest string `yaml:"monthly_interest"`
	Penalty         string `yaml:"penalty"`
}

// BillingConfig holds issuing defaults.
type BillingConfig struct {
	DueDays int `yaml:"due_days"` // due date offset when none is given
}

// PathsConfig locates bank files relative to the working directory.
type PathsConfig struct {
	RemittanceDir string `yaml:"remittance_dir"`
	ReturnInbox   string `yaml:"return_inbox"`
}

var digits = regexp.MustCompile(`^[0-9]+$`)

// Load reads a cobranca.yaml file from disk. Environment variables with the
// COBRANCA_ prefix override file values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:   v.GetString("database.driver"),
			DSN:      v.GetString("database.dsn"),
			LogLevel: v.GetString("database.log_level"),
		},
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Bank: BankConfig{
			Code:             v.GetString("bank.code"),
			Name:             v.GetString("bank.name"),
			Agency:           v.GetString("bank.agency"),
			Account:          v.GetString("bank.account"),
			AccountDigit:     v.GetString("bank.account_digit"),
			Wallet:           v.GetString("bank.wallet"),
			BeneficiaryCode:  v.GetString("bank.beneficiary_code"),
			BeneficiaryName:  v.GetString("bank.beneficiary_name"),
			BeneficiaryTaxID: v.GetString("bank.beneficiary_tax_id"),
		},
		Rates: RatesConfig{
			MonthlyInterest: v.GetString("rates.monthly_interest"),
			Penalty:         v.GetString("rates.penalty"),
		},
		Billing: BillingConfig{
			DueDays: v.GetInt("billing.due_days"),
		},
		Paths: PathsConfig{
			RemittanceDir: v.GetString("paths.remittance_dir"),
			ReturnInbox:   v.GetString("paths.return_inbox"),
		},
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	d := Default("")
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = d.Database.Driver
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = d.Database.DSN
	}
	if cfg.Log.Level == "" {
		cfg.Log = d.Log
	}
	if cfg.Rates.MonthlyInterest == "" {
		cfg.Rates.MonthlyInterest = d.Rates.MonthlyInterest
	}
	if cfg.Rates.Penalty == "" {
		cfg.Rates.Penalty = d.Rates.Penalty
	}
	if cfg.Billing.DueDays == 0 {
		cfg.Billing.DueDays = d.Billing.DueDays
	}
	if cfg.Paths.RemittanceDir == "" {
		cfg.Paths.RemittanceDir = d.Paths.RemittanceDir
	}
	if cfg.Paths.ReturnInbox == "" {
		cfg.Paths.ReturnInbox = d.Paths.ReturnInbox
	}
}

// Validate checks the values the bank layout and calculator depend on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	numeric := []struct {
		key, val string
		max      int
	}{
		{"bank.code", c.Bank.Code, 3},
		{"bank.agency", c.Bank.Agency, 4},
		{"bank.account", c.Bank.Account, 5},
		{"bank.account_digit", c.Bank.AccountDigit, 1},
		{"bank.wallet", c.Bank.Wallet, 3},
		{"bank.beneficiary_code", c.Bank.BeneficiaryCode, 20},
		{"bank.beneficiary_tax_id", c.Bank.BeneficiaryTaxID, 14},
	}
	for _, f := range numeric {
		if !digits.MatchString(f.val) || len(f.val) > f.max {
			return fmt.Errorf("%s must be 1 to %d digits, got %q", f.key, f.max, f.val)
		}
	}
	if _, err := c.InterestRates(); err != nil {
		return err
	}
	if c.Billing.DueDays < 0 {
		return fmt.Errorf("billing.due_days cannot be negative")
	}
	return nil
}

// InterestRates parses the configured rates.
func (c *Config) InterestRates() (interest.Rates, error) {
	monthly, err := decimal.NewFromString(c.Rates.MonthlyInterest)
	if err != nil {
		return interest.Rates{}, fmt.Errorf("rates.monthly_interest: %w", err)
	}
	penalty, err := decimal.NewFromString(c.Rates.Penalty)
	if err != nil {
		return interest.Rates{}, fmt.Errorf("rates.penalty: %w", err)
	}
	if monthly.IsNegative() || penalty.IsNegative() {
		return interest.Rates{}, fmt.Errorf("rates cannot be negative")
	}
	return interest.Rates{MonthlyInterest: monthly, Penalty: penalty}, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default(beneficiaryName string) *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   "sqlite",
			DSN:      "cobranca.db",
			LogLevel: "warn",
		},
		Log: logging.DefaultConfig(),
		Bank: BankConfig{
			Code:             "341",
			Name:             "BANCO ITAU SA",
			Agency:           "0001",
			Account:          "12345",
			AccountDigit:     "0",
			Wallet:           "109",
			BeneficiaryCode:  "1",
			BeneficiaryName:  beneficiaryName,
			BeneficiaryTaxID: "00000000000000",
		},
		Rates: RatesConfig{
			MonthlyInterest: "0.01",
			Penalty:         "0.02",
		},
		Billing: BillingConfig{
			DueDays: 30,
		},
		Paths: PathsConfig{
			RemittanceDir: "remessa",
			ReturnInbox:   "retorno",
		},
	}
}
