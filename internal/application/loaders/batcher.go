// Package loaders coalesces near-simultaneous backend reads into
// batched round trips.
package loaders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BatchFunction is the function that performs the actual batch loading
type BatchFunction[K comparable, V any] func(context.Context, []K) (map[K]V, error)

// Result holds the result of a batch load operation
type Result[V any] struct {
	Value V
	Error error
}

// pendingRequest represents a pending load request
type pendingRequest[V any] struct {
	ctx    context.Context
	result chan Result[V]
}

// Batcher collects requests arriving within a debounce window and
// executes one batched backend call per window, fanning results back
// out to individual callers. A new window does not open until the
// previous one's results have been delivered, so windows never overlap.
type Batcher[K comparable, V any] struct {
	// Configuration
	batchFn      BatchFunction[K, V]
	batchWindow  time.Duration
	maxBatchSize int

	// State management
	mu       sync.Mutex
	pending  map[K][]*pendingRequest[V]
	timer    *time.Timer
	flushing bool

	// Metrics
	totalBatches  int64
	totalRequests int64
	batchSizeSum  int64

	logger *zap.Logger
}

// NewBatcher creates a new batcher
func NewBatcher[K comparable, V any](
	batchFn BatchFunction[K, V],
	batchWindow time.Duration,
	maxBatchSize int,
	logger *zap.Logger,
) *Batcher[K, V] {
	if batchWindow <= 0 {
		batchWindow = 50 * time.Millisecond
	}
	if maxBatchSize <= 0 {
		maxBatchSize = 25
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Batcher[K, V]{
		batchFn:      batchFn,
		batchWindow:  batchWindow,
		maxBatchSize: maxBatchSize,
		pending:      make(map[K][]*pendingRequest[V]),
		logger:       logger.Named("batcher"),
	}
}

// Load loads a single value, batching with other concurrent requests
func (b *Batcher[K, V]) Load(ctx context.Context, key K) (V, error) {
	b.mu.Lock()

	resultChan := make(chan Result[V], 1)
	req := &pendingRequest[V]{
		ctx:    ctx,
		result: resultChan,
	}

	b.pending[key] = append(b.pending[key], req)
	b.totalRequests++

	// While a flush is in progress new requests only accumulate; the
	// flush's commit step schedules the next window.
	if !b.flushing {
		if len(b.pending) >= b.maxBatchSize {
			if b.timer != nil {
				b.timer.Stop()
				b.timer = nil
			}
			go b.dispatch()
		} else if b.timer == nil {
			b.timer = time.AfterFunc(b.batchWindow, b.dispatch)
		}
	}

	b.mu.Unlock()

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case result := <-resultChan:
		return result.Value, result.Error
	}
}

// LoadMany loads multiple values, batching them together
func (b *Batcher[K, V]) LoadMany(ctx context.Context, keys []K) (map[K]V, error) {
	results := make(map[K]V)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, key := range keys {
		wg.Add(1)
		go func(k K) {
			defer wg.Done()

			value, err := b.Load(ctx, k)
			mu.Lock()
			defer mu.Unlock()

			if err != nil && firstErr == nil {
				firstErr = err
			} else if err == nil {
				results[k] = value
			}
		}(key)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return results, nil
}

// dispatch executes the batch function for all pending requests
func (b *Batcher[K, V]) dispatch() {
	b.mu.Lock()

	if len(b.pending) == 0 {
		b.timer = nil
		b.mu.Unlock()
		return
	}

	requests := b.pending
	b.pending = make(map[K][]*pendingRequest[V])
	b.timer = nil
	b.flushing = true

	keys := make([]K, 0, len(requests))
	for key := range requests {
		keys = append(keys, key)
	}

	b.totalBatches++
	b.batchSizeSum += int64(len(keys))

	b.mu.Unlock()

	// Use the first still-live request context for the batched call.
	ctx := context.Background()
	for _, reqs := range requests {
		for _, req := range reqs {
			if req.ctx.Err() == nil {
				ctx = req.ctx
				break
			}
		}
	}

	startTime := time.Now()
	results, err := b.batchFn(ctx, keys)
	duration := time.Since(startTime)

	b.logger.Debug("Batch executed",
		zap.Int("requested", len(keys)),
		zap.Int("returned", len(results)),
		zap.Duration("duration", duration),
		zap.Error(err),
	)

	// Deliver results to waiting requests
	for key, reqs := range requests {
		var result Result[V]

		if err != nil {
			result.Error = fmt.Errorf("batch load failed: %w", err)
		} else if value, ok := results[key]; ok {
			result.Value = value
		} else {
			result.Error = fmt.Errorf("key not found in batch results")
		}

		for _, req := range reqs {
			select {
			case req.result <- result:
			case <-req.ctx.Done():
				// Request was cancelled, skip
			}
		}
	}

	// Commit: reopen the window for anything that accumulated during
	// the flush.
	b.mu.Lock()
	b.flushing = false
	if len(b.pending) > 0 && b.timer == nil {
		b.timer = time.AfterFunc(b.batchWindow, b.dispatch)
	}
	b.mu.Unlock()
}

// GetMetrics returns batching metrics
func (b *Batcher[K, V]) GetMetrics() BatcherMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	avgBatchSize := float64(0)
	if b.totalBatches > 0 {
		avgBatchSize = float64(b.batchSizeSum) / float64(b.totalBatches)
	}

	return BatcherMetrics{
		TotalBatches:  b.totalBatches,
		TotalRequests: b.totalRequests,
		AvgBatchSize:  avgBatchSize,
	}
}

// BatcherMetrics holds metrics for the batcher
type BatcherMetrics struct {
	TotalBatches  int64
	TotalRequests int64
	AvgBatchSize  float64
}
