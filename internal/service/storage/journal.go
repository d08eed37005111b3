package storage

import (
	"context"
	"sync"
	"time"

	"edgeagent/internal/logger"
	"edgeagent/internal/metrics"
	"edgeagent/internal/model"
	"edgeagent/internal/repository"
)

// Journal buffers settled deliveries in memory and periodically flushes them
// to the repository. Record never touches the database.
type Journal struct {
	repo     repository.DeliveryRepository
	buffer   []model.Delivery
	limit    int
	dropped  uint64
	mu       sync.Mutex
	flushMu  sync.Mutex
	interval time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

// NewJournal creates a Journal. limit caps the buffered deliveries between
// flushes; further records are dropped and counted.
func NewJournal(repo repository.DeliveryRepository, interval time.Duration, limit int, logger *logger.Logger, metrics *metrics.Metrics) *Journal {
	return &Journal{
		repo:     repo,
		buffer:   make([]model.Delivery, 0, limit),
		limit:    limit,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run flushes every interval until ctx is done, then flushes once more.
func (j *Journal) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.Flush()
			return
		case <-ticker.C:
			j.Flush()
		}
	}
}

// Record buffers d.
func (j *Journal) Record(d model.Delivery) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.limit > 0 && len(j.buffer) >= j.limit {
		j.dropped++
		return
	}
	j.buffer = append(j.buffer, d)
}

// Flush writes buffered deliveries to the repository. On failure they are kept
// for the next flush, within the buffer limit.
func (j *Journal) Flush() int {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()

	j.mu.Lock()
	pending := j.buffer
	j.buffer = make([]model.Delivery, 0, j.limit)
	dropped := j.dropped
	j.dropped = 0
	j.mu.Unlock()

	if dropped > 0 {
		j.logger.Warning("Journal buffer full, %d deliveries were not recorded", dropped)
	}
	if len(pending) == 0 {
		return 0
	}

	if err := j.repo.InsertBatch(pending); err != nil {
		j.logger.Error("Error saving %d deliveries to database: %v", len(pending), err)
		j.requeue(pending)
		return 0
	}

	j.metrics.JournalFlushed.Add(float64(len(pending)))
	j.logger.Info("Flushed %d deliveries to the journal", len(pending))
	return len(pending)
}

func (j *Journal) requeue(failed []model.Delivery) {
	j.mu.Lock()
	defer j.mu.Unlock()

	merged := append(failed, j.buffer...)
	if j.limit > 0 && len(merged) > j.limit {
		j.dropped += uint64(len(merged) - j.limit)
		merged = merged[:j.limit]
	}
	j.buffer = merged
}

// Buffered returns the number of deliveries waiting for a flush.
func (j *Journal) Buffered() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.buffer)
}
