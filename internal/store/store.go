// Package store persists instruments, payments, batch runs and counters
// through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cleared-dev/cobranca/internal/logging"
	"github.com/cleared-dev/cobranca/internal/model"
)

// Options selects the database and how SQL is logged.
type Options struct {
	Driver        string // sqlite or postgres
	DSN           string
	LogLevel      string // silent, error, warn, info
	SlowThreshold time.Duration
}

// Store wraps a gorm handle. A Store returned to a WithTx callback is bound
// to that transaction.
type Store struct {
	db *gorm.DB
}

// New wraps an already opened database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database described by opts.
func Open(opts Options, log *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(opts.DSN)
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logging.NewGormLogger(log, logging.GormLevel(opts.LogLevel), opts.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialector.Name(), err)
	}

	// sqlite has no row locks; one connection serializes every transaction.
	if dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("getting sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &Store{db: db}, nil
}

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&model.SequenceCounter{},
		&model.Instrument{},
		&model.Payment{},
		&model.CollectionAttempt{},
		&model.BatchRun{},
		&model.BatchRunItem{},
	); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// DB returns the underlying handle, bound to the current transaction if any.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction. Returning an error rolls it back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func notFound(err error, what string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, key, model.ErrNotFound)
	}
	return fmt.Errorf("loading %s %v: %w", what, key, err)
}
