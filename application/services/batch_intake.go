package services

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"topicgraph/pkg/observability"
)

// BatchHandler processes one drained batch of texts
type BatchHandler interface {
	HandleBatch(ctx context.Context, batchID string, texts []string)
}

// BatchIntake buffers text observations and hands them to its handler in
// batches. At most one flush runs at a time; a flush requested while another
// is running is dropped and its texts wait for the next trigger.
type BatchIntake struct {
	mu        sync.Mutex
	buffer    []string
	batchSize int
	flushing  atomic.Bool
	handler   BatchHandler
	logger    *zap.Logger
	metrics   *observability.Collector
}

// NewBatchIntake creates a new batch intake that flushes at batchSize texts
func NewBatchIntake(batchSize int, handler BatchHandler, logger *zap.Logger, metrics *observability.Collector) *BatchIntake {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &BatchIntake{
		batchSize: batchSize,
		handler:   handler,
		logger:    logger,
		metrics:   metrics,
	}
}

// Submit buffers texts and flushes once the buffer reaches the batch size.
// Blank texts are ignored. It returns the number of texts accepted and
// whether this call ran a flush.
func (b *BatchIntake) Submit(ctx context.Context, texts ...string) (accepted int, flushed bool) {
	b.mu.Lock()
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		b.buffer = append(b.buffer, text)
		accepted++
	}
	ready := len(b.buffer) >= b.batchSize
	pending := len(b.buffer)
	b.mu.Unlock()

	b.metrics.SetPending(pending)
	if !ready {
		return accepted, false
	}
	return accepted, b.Flush(ctx)
}

// Flush drains the buffer and sends it as one batch. It returns false when
// the buffer was empty or another flush was already running.
func (b *BatchIntake) Flush(ctx context.Context) bool {
	if !b.flushing.CompareAndSwap(false, true) {
		b.logger.Debug("Flush already in progress, leaving texts buffered", zap.Int("pending", b.Pending()))
		b.metrics.RecordDroppedFlush()
		return false
	}
	defer b.flushing.Store(false)

	b.mu.Lock()
	texts := b.buffer
	b.buffer = nil
	b.mu.Unlock()
	b.metrics.SetPending(0)

	if len(texts) == 0 {
		return false
	}

	batchID := uuid.New().String()
	b.logger.Debug("Flushing batch",
		zap.String("batchID", batchID),
		zap.Int("texts", len(texts)),
	)
	b.metrics.RecordBatch(len(texts))
	b.handler.HandleBatch(ctx, batchID, texts)
	return true
}

// Pending returns the number of buffered texts
func (b *BatchIntake) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Flushing reports whether a flush is running
func (b *BatchIntake) Flushing() bool {
	return b.flushing.Load()
}
