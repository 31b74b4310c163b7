// Package worker defines worker contracts for asynchronous node processing.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avetra/prospect/internal/adapters/mq/queue"
	"github.com/avetra/prospect/internal/domain/model"
	"github.com/avetra/prospect/pkg/logger"
	"github.com/avetra/prospect/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultRedeliveryMax    = 3
	metricsUpdateInterval   = 5 * time.Second
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Message abstracts what workers read off the queue.
// Using the queue.Message type for consistency.
type Message = queue.Message

// Processor runs the ingestion pipeline for one identifier.
type Processor interface {
	ProcessIdentifier(ctx context.Context, id model.Identifier) model.Outcome
}

// Queue defines how workers receive messages and return retryable ones.
type Queue interface {
	Enqueue(ctx context.Context, m Message) bool
	Dequeue(ctx context.Context) <-chan Message
}

// Guard releases and re-claims the in-flight slot a message holds.
type Guard interface {
	SeenAndRecord(ctx context.Context, nodeID string) bool
	Unrecord(ctx context.Context, nodeID string)
}

// noopGuard is the default when no dedupe guard is wired.
type noopGuard struct{}

func (noopGuard) SeenAndRecord(context.Context, string) bool { return false }
func (noopGuard) Unrecord(context.Context, string)           {}

// Worker processes queued node messages using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will process any remaining messages before stopping.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing node messages.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	guard     Guard
	name      string

	// Configuration
	redeliveryMax int
	onProcessed   func()

	// Shutdown control
	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:         queue,
		processor:     processor,
		guard:         noopGuard{},
		name:          "worker", // default name
		redeliveryMax: defaultRedeliveryMax,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		logger:        logger.Get().Named("worker"), // will be updated by options
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	// Set up logger with worker name if not already set
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	msgChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case msg, ok := <-msgChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			// Process the message
			if err := w.processMessage(ctx, msg); err != nil {
				w.logger.Error(ctx, "error processing message", logger.Error(err))
			}
		}
	}
}

// signalShutdown closes the shutdown channel exactly once.
func (w *InMemoryWorker) signalShutdown() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	// Signal shutdown
	w.signalShutdown()

	// Wait for worker to finish or context to timeout
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processMessage runs the pipeline for one message and decides its fate:
// done, redelivered, or dropped.
func (w *InMemoryWorker) processMessage(ctx context.Context, msg Message) error {
	// Track overall processing latency
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordWorkerProcessingLatency(float64(latency))
	}()

	out := w.processor.ProcessIdentifier(ctx, model.Identifier{
		NodeID:       msg.NodeID,
		UsernameHint: msg.UsernameHint,
	})

	// The in-flight slot is released once processing finished; redelivery
	// claims a fresh one below.
	w.guard.Unrecord(ctx, msg.NodeID)

	if out.Success {
		if w.onProcessed != nil {
			w.onProcessed()
		}
		return nil
	}

	metrics.RecordWorkerError()
	if !out.Retryable() {
		metrics.RecordErrorByComponent("worker", "permanent_failure")
		return fmt.Errorf("node %s failed permanently: %w", msg.NodeID, out.Fault)
	}
	if msg.Attempt >= w.redeliveryMax {
		metrics.RecordQueueDropped()
		metrics.RecordErrorByComponent("worker", "redelivery_exhausted")
		return fmt.Errorf("node %s dropped after %d deliveries: %w", msg.NodeID, msg.Attempt+1, out.Fault)
	}

	w.redeliver(ctx, msg)
	return nil
}

// redeliver re-enqueues a retryable message with a bumped attempt counter.
func (w *InMemoryWorker) redeliver(ctx context.Context, msg Message) {
	if w.guard.SeenAndRecord(ctx, msg.NodeID) {
		// The node was re-submitted while we processed it; that submission
		// owns the next attempt.
		w.logger.Debug(ctx, "redelivery superseded by new submission",
			logger.String("nodeID", msg.NodeID),
		)
		return
	}

	next := msg
	next.Attempt++
	if !w.queue.Enqueue(ctx, next) {
		w.guard.Unrecord(ctx, msg.NodeID)
		metrics.RecordQueueDropped()
		metrics.RecordErrorByComponent("worker", "redelivery_queue_full")
		w.logger.Warn(ctx, "redelivery dropped, queue full",
			logger.String("nodeID", msg.NodeID),
			logger.Int("attempt", next.Attempt),
		)
		return
	}

	metrics.RecordQueueRedelivery()
	w.logger.Info(ctx, "message redelivered",
		logger.String("nodeID", msg.NodeID),
		logger.Int("attempt", next.Attempt),
	)
}

// Pool manages multiple workers.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processor Processor

	// Shutdown control
	shutdown chan struct{}
	stopOnce sync.Once

	// Metrics tracking
	processedCount    atomic.Int64
	lastProcessedTime time.Time

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool. Options are applied to every worker.
func NewPool(workerCount int, queue Queue, processor Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             queue,
		processor:         processor,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{
			WithName("worker-" + strconv.Itoa(i)),
			WithProcessedHook(pool.RecordProcessedMessage),
		}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, processor, workerOpts...)
	}

	// Initialize worker metrics
	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}

	// Start metrics updater
	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater starts a background goroutine that updates worker metrics.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval) // Update metrics every 5 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

// updateMetrics updates worker-related metrics.
func (p *Pool) updateMetrics() {
	// Calculate messages per second
	now := time.Now()
	timeDiff := now.Sub(p.lastProcessedTime).Seconds()
	if timeDiff > 0 {
		messagesPerSecond := float64(p.processedCount.Load()) / timeDiff
		metrics.UpdateWorkerMessagesPerSecond(messagesPerSecond)
	}

	// Reset counters
	p.processedCount.Store(0)
	p.lastProcessedTime = now
}

// RecordProcessedMessage increments the processed message count.
func (p *Pool) RecordProcessedMessage() {
	p.processedCount.Add(1)
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	// Signal shutdown to all workers
	p.stopOnce.Do(func() { close(p.shutdown) })
	for _, worker := range p.workers {
		worker.signalShutdown()
	}

	// Wait for all workers to finish
	for _, worker := range p.workers {
		select {
		case <-worker.done:
			// Worker finished
		case <-time.After(workerShutdownTimeout):
			// Worker timeout
		}
	}
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new messages
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	// Signal shutdown to all workers
	p.stopOnce.Do(func() { close(p.shutdown) })
	for _, worker := range p.workers {
		worker.signalShutdown()
	}

	// Wait for all workers to finish or context to timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}
