package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu      sync.Mutex
	batches [][]string

	started chan struct{}
	release chan struct{}
}

func (h *recordingHandler) HandleBatch(ctx context.Context, batchID string, texts []string) {
	if h.started != nil {
		h.started <- struct{}{}
	}
	if h.release != nil {
		<-h.release
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, texts)
}

func (h *recordingHandler) calls() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.batches
}

func TestBatchIntake_FlushesOnceAtBatchSize(t *testing.T) {
	handler := &recordingHandler{}
	intake := NewBatchIntake(50, handler, zap.NewNop(), nil)
	ctx := context.Background()

	for i := 0; i < 49; i++ {
		_, flushed := intake.Submit(ctx, fmt.Sprintf("post %d", i))
		require.False(t, flushed)
	}
	assert.Empty(t, handler.calls())
	assert.Equal(t, 49, intake.Pending())

	accepted, flushed := intake.Submit(ctx, "post 49")

	assert.Equal(t, 1, accepted)
	assert.True(t, flushed)
	require.Len(t, handler.calls(), 1)
	assert.Len(t, handler.calls()[0], 50)
	assert.Equal(t, "post 0", handler.calls()[0][0])
	assert.Zero(t, intake.Pending())
}

func TestBatchIntake_IgnoresBlankTexts(t *testing.T) {
	handler := &recordingHandler{}
	intake := NewBatchIntake(2, handler, zap.NewNop(), nil)

	accepted, flushed := intake.Submit(context.Background(), "", "   ", "one")

	assert.Equal(t, 1, accepted)
	assert.False(t, flushed)
	assert.Equal(t, 1, intake.Pending())
}

func TestBatchIntake_FlushEmptyBuffer(t *testing.T) {
	handler := &recordingHandler{}
	intake := NewBatchIntake(10, handler, zap.NewNop(), nil)

	assert.False(t, intake.Flush(context.Background()))
	assert.Empty(t, handler.calls())
}

func TestBatchIntake_OverlappingFlushIsDropped(t *testing.T) {
	handler := &recordingHandler{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	intake := NewBatchIntake(2, handler, zap.NewNop(), nil)
	ctx := context.Background()

	done := make(chan bool)
	go func() {
		_, flushed := intake.Submit(ctx, "a", "b")
		done <- flushed
	}()

	select {
	case <-handler.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first flush never started")
	}
	require.True(t, intake.Flushing())

	accepted, flushed := intake.Submit(ctx, "c", "d")
	assert.Equal(t, 2, accepted)
	assert.False(t, flushed, "flush requested mid-flush is dropped")
	assert.False(t, intake.Flush(ctx))
	assert.Equal(t, 2, intake.Pending(), "dropped flush leaves texts buffered")

	handler.started = nil
	close(handler.release)
	assert.True(t, <-done)

	assert.True(t, intake.Flush(ctx))
	calls := handler.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"a", "b"}, calls[0])
	assert.Equal(t, []string{"c", "d"}, calls[1])
}
