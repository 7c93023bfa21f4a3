package worker

import (
	"context"
	"fmt"
	"time"

	"todoTracker/internal/logger"

	"go.uber.org/zap"
)

// Purger физически удаляет задачи, мягко удалённые раньше before.
type Purger interface {
	PurgeDeleted(ctx context.Context, before time.Time, limit int) (int, error)
}

type PurgeWorker struct {
	repo      Purger
	interval  time.Duration
	retention time.Duration
	batchSize int
	now       func() time.Time
}

func NewPurgeWorker(repo Purger, interval, retention *time.Duration, batchSize *int) *PurgeWorker {
	var intervalToSet time.Duration
	if interval == nil || *interval <= 0 {
		intervalToSet = time.Hour
	} else {
		intervalToSet = *interval
	}

	var retentionToSet time.Duration
	if retention == nil {
		retentionToSet = 30 * 24 * time.Hour
	} else {
		retentionToSet = *retention
	}

	var batchToSet int
	if batchSize == nil || *batchSize <= 0 {
		batchToSet = 500
	} else {
		batchToSet = *batchSize
	}

	return &PurgeWorker{
		repo:      repo,
		interval:  intervalToSet,
		retention: retentionToSet,
		batchSize: batchToSet,
		now:       time.Now,
	}
}

// Enabled - при нулевом сроке хранения удалённые задачи не вычищаются
func (w *PurgeWorker) Enabled() bool {
	return w.retention > 0
}

func (w *PurgeWorker) Start(ctx context.Context) {
	if !w.Enabled() {
		logger.Info("Worker: Очистка удалённых задач отключена")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logger.Info("Worker: Фоновая очистка удалённых задач", zap.Time("started_at", w.now()))
			if _, err := w.Check(ctx); err != nil {
				logger.Warn("Worker: Ошибка очистки", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("Worker: Фоновая очистка останавливается")
			return
		}
	}
}

// Check удаляет пачками, пока пачка заполняется целиком
func (w *PurgeWorker) Check(ctx context.Context) (int, error) {
	if !w.Enabled() {
		return 0, nil
	}

	start := time.Now()
	before := w.now().Add(-w.retention)
	total := 0

	for {
		purged, err := w.repo.PurgeDeleted(ctx, before, w.batchSize)
		if err != nil {
			return total, fmt.Errorf("очистка удалённых задач: %w", err)
		}
		total += purged
		if purged < w.batchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}

	logger.Info(
		"Worker: Завершение очистки",
		zap.Duration("ms", time.Since(start)),
		zap.Time("before", before),
		zap.Int("purged", total),
	)
	return total, nil
}
