package sequence

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cleared-dev/cobranca/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seq.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.SequenceCounter{}))
	return db
}

func next(t *testing.T, db *gorm.DB, a *Allocator, year int, kind Kind) int64 {
	t.Helper()
	var v int64
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		v, err = a.Next(context.Background(), tx, year, kind)
		return err
	})
	require.NoError(t, err)
	return v
}

func TestNext_Monotonic(t *testing.T) {
	db := openTestDB(t)
	a := NewAllocator()

	assert.Equal(t, int64(1), next(t, db, a, 2025, Instrument))
	assert.Equal(t, int64(2), next(t, db, a, 2025, Instrument))
	assert.Equal(t, int64(3), next(t, db, a, 2025, Instrument))
}

func TestNext_KindsAndYearsAreIndependent(t *testing.T) {
	db := openTestDB(t)
	a := NewAllocator()

	assert.Equal(t, int64(1), next(t, db, a, 2025, Instrument))
	assert.Equal(t, int64(1), next(t, db, a, 2025, ControlNumber))
	assert.Equal(t, int64(1), next(t, db, a, 2026, Instrument))
	assert.Equal(t, int64(2), next(t, db, a, 2025, Instrument))
}

func TestNext_YearIndependentKind(t *testing.T) {
	db := openTestDB(t)
	a := NewAllocator()

	assert.Equal(t, int64(1), next(t, db, a, 2025, Remittance))
	assert.Equal(t, int64(2), next(t, db, a, 2026, Remittance))

	cur, err := a.Current(context.Background(), db, 1999, Remittance)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cur)
}

func TestNext_RollbackLeavesNoDuplicate(t *testing.T) {
	db := openTestDB(t)
	a := NewAllocator()

	assert.Equal(t, int64(1), next(t, db, a, 2025, Payment))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := a.Next(context.Background(), tx, 2025, Payment)
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, int64(2), next(t, db, a, 2025, Payment))
}

func TestNext_Exhausted(t *testing.T) {
	db := openTestDB(t)
	a := NewAllocator()

	require.NoError(t, db.Create(&model.SequenceCounter{Year: 2025, Kind: Instrument.Name, LastValue: Instrument.Max}).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := a.Next(context.Background(), tx, 2025, Instrument)
		return err
	})
	require.ErrorIs(t, err, model.ErrSequenceExhausted)

	cur, err := a.Current(context.Background(), db, 2025, Instrument)
	require.NoError(t, err)
	assert.Equal(t, Instrument.Max, cur, "counter must not wrap")
}

func TestCurrent_NoRow(t *testing.T) {
	db := openTestDB(t)
	cur, err := NewAllocator().Current(context.Background(), db, 2025, ControlNumber)
	require.NoError(t, err)
	assert.Zero(t, cur)
}

func TestNext_Concurrent(t *testing.T) {
	db := openTestDB(t)
	a := NewAllocator()

	const workers = 100
	values := make(chan int64, workers)
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				v, err := a.Next(context.Background(), tx, 2025, ControlNumber)
				if err != nil {
					return err
				}
				values <- v
				return nil
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(values)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[int64]bool, workers)
	for v := range values {
		assert.False(t, seen[v], "duplicate value %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, workers)
}
