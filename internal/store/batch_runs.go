package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cleared-dev/cobranca/internal/model"
)

// CreateBatchRun inserts a run in CREATED.
func (s *Store) CreateBatchRun(ctx context.Context, run *model.BatchRun) error {
	if err := s.db.WithContext(ctx).Omit("Items").Create(run).Error; err != nil {
		return fmt.Errorf("creating batch run: %w", err)
	}
	return nil
}

// GetBatchRun loads a run with its items in line order.
func (s *Store) GetBatchRun(ctx context.Context, id uuid.UUID) (*model.BatchRun, error) {
	var run model.BatchRun
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line, id") }).
		Where("id = ?", id).
		Take(&run).Error
	if err != nil {
		return nil, notFound(err, "batch run", id)
	}
	return &run, nil
}

// SaveBatchRun writes the run's status and results if the stored status is
// still from.
func (s *Store) SaveBatchRun(ctx context.Context, run *model.BatchRun, from model.BatchStatus) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.BatchRun{}).
		Where("id = ? AND status = ?", run.ID, from).
		Updates(map[string]any{
			"status":       run.Status,
			"record_count": run.RecordCount,
			"total_amount": run.TotalAmount,
			"error_detail": run.ErrorDetail,
			"file_name":    run.FileName,
			"file_hash":    run.FileHash,
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("saving batch run %s: %w", run.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("saving batch run %s from %s: %w", run.ID, from, model.ErrConcurrentModification)
	}
	run.UpdatedAt = now
	return nil
}

// AddBatchItems appends item records to a run.
func (s *Store) AddBatchItems(ctx context.Context, items []model.BatchRunItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&items).Error; err != nil {
		return fmt.Errorf("recording batch items: %w", err)
	}
	return nil
}

// ListBatchRuns returns runs in direction, newest first. An empty direction
// means both.
func (s *Store) ListBatchRuns(ctx context.Context, direction model.Direction) ([]model.BatchRun, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if direction != "" {
		q = q.Where("direction = ?", direction)
	}
	var out []model.BatchRun
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing batch runs: %w", err)
	}
	return out, nil
}

// ProcessedRunsWithHash returns inbound runs already processed from a file
// with the given sha256.
func (s *Store) ProcessedRunsWithHash(ctx context.Context, hash string) ([]model.BatchRun, error) {
	var out []model.BatchRun
	err := s.db.WithContext(ctx).
		Where("direction = ? AND status = ? AND file_hash = ?", model.DirectionInbound, model.BatchProcessed, hash).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("finding runs for file %s: %w", hash, err)
	}
	return out, nil
}
