// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the queue dispatcher.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	nodequeue "github.com/avetra/prospect/internal/adapters/mq/queue"
	workerpool "github.com/avetra/prospect/internal/adapters/mq/worker"
	"github.com/avetra/prospect/internal/adapters/providers"
	repository "github.com/avetra/prospect/internal/adapters/repository"
	"github.com/avetra/prospect/internal/domain/dedupe"
	"github.com/avetra/prospect/internal/domain/fallback"
	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
	"github.com/avetra/prospect/internal/domain/scoring"
	"github.com/avetra/prospect/internal/domain/transform"
	"github.com/avetra/prospect/pkg/logger"
	"github.com/avetra/prospect/pkg/metrics"
	"github.com/google/uuid"
)

// Service defaults.
const (
	defaultQueueSize      = 10000
	defaultDedupeSize     = 50000
	defaultRedeliveryMax  = 3
	defaultQualityRetries = 2
	defaultQualityDelay   = 2 * time.Second
	defaultBatchLimit     = 10
	defaultBatchLimitMax  = 100
)

// EnqueueStatus reports what happened to a node submitted for asynchronous
// processing.
type EnqueueStatus string

const (
	EnqueueAccepted  EnqueueStatus = "accepted"
	EnqueueDuplicate EnqueueStatus = "duplicate"
	EnqueueFull      EnqueueStatus = "queue_full"
)

// ProviderInfo describes one fallback-chain member for the status endpoint.
type ProviderInfo struct {
	Name       string `json:"name"`
	Position   int    `json:"position"`
	Configured bool   `json:"configured"`
	Host       string `json:"host,omitempty"`
	Healthy    *bool  `json:"healthy,omitempty"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Service runs the ingestion pipeline: fetch through the fallback chain,
// transform, score, persist, aggregate.
type Service struct {
	mu sync.RWMutex

	// Core components
	chain       *fallback.Chain
	transformer *transform.Transformer
	scorer      scoring.Scorer
	store       repository.Store
	guard       dedupe.Guard
	queue       nodequeue.Queue
	pool        *workerpool.Pool

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	redeliveryMax  int
	budget         time.Duration
	qualityRetries int
	qualityDelay   time.Duration
	batchLimit     int
	batchLimitMax  int

	// State
	started   bool
	startedAt time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of pipeline workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the node queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the in-flight dedupe window.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRedeliveryMax caps how often a retryable queue message is re-enqueued.
// Zero disables redelivery.
func WithRedeliveryMax(max int) Option {
	return func(s *Service) {
		if max >= 0 {
			s.redeliveryMax = max
		}
	}
}

// WithBudget bounds the wall-clock time one invocation may spend. Workers
// consult the budget between identifiers; zero means no budget.
func WithBudget(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.budget = d
		}
	}
}

// WithQualityRetries sets how often a below-threshold profile is refetched.
func WithQualityRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.qualityRetries = n
		}
	}
}

// WithQualityRetryDelay sets the initial delay before a quality refetch.
func WithQualityRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.qualityDelay = d
		}
	}
}

// WithBatchLimits sets the default and maximum candidate counts for
// batch-mode invocations.
func WithBatchLimits(def, max int) Option {
	return func(s *Service) {
		if def > 0 {
			s.batchLimit = def
		}
		if max > 0 {
			s.batchLimitMax = max
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service around the injected pipeline components.
func New(chain *fallback.Chain, tr *transform.Transformer, sc scoring.Scorer, store repository.Store, opts ...Option) (*Service, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: fallback chain", ErrMissingDependency)
	}
	if tr == nil {
		return nil, fmt.Errorf("%w: transformer", ErrMissingDependency)
	}
	if sc == nil {
		return nil, fmt.Errorf("%w: scorer", ErrMissingDependency)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	}

	s := &Service{
		chain:          chain,
		transformer:    tr,
		scorer:         sc,
		store:          store,
		workerCount:    runtime.NumCPU() * 2, // Default to 2x CPU cores
		queueSize:      defaultQueueSize,
		dedupeSize:     defaultDedupeSize,
		redeliveryMax:  defaultRedeliveryMax,
		qualityRetries: defaultQualityRetries,
		qualityDelay:   defaultQualityDelay,
		batchLimit:     defaultBatchLimit,
		batchLimitMax:  defaultBatchLimitMax,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	return s, nil
}

// Start brings up the queue and the dispatcher pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting ingestion service...")

	s.guard = dedupe.New(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = nodequeue.NewInMemoryQueue(
		nodequeue.WithCapacity(s.queueSize),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s,
		workerpool.WithGuard(s.guard),
		workerpool.WithRedeliveryMax(s.redeliveryMax),
	)
	s.pool.Start(ctx)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "ingestion service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueCapacity", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Any("providers", s.chain.Names()),
	)

	return nil
}

// Stop gracefully shuts down the dispatcher and the queue.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping ingestion service...")

	if s.pool != nil {
		s.pool.Stop()
	}
	if q, ok := s.queue.(*nodequeue.InMemoryQueue); ok {
		_ = q.Close()
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "ingestion service stopped")
}

// ProcessIdentifiers runs the pipeline over an ordered identifier list with a
// bounded worker set and aggregates one outcome per identifier, in input
// order. Identifiers not started before the budget expires are reported as
// retryable timeouts, never dropped.
func (s *Service) ProcessIdentifiers(ctx context.Context, ids []model.Identifier) model.BatchResult {
	invocationID := uuid.NewString()
	start := time.Now()

	metrics.RecordBatchSize(len(ids))
	s.logger.Info(ctx, "processing batch",
		logger.String("invocationID", invocationID),
		logger.Int("identifiers", len(ids)),
	)

	var deadline time.Time
	if s.budget > 0 {
		deadline = start.Add(s.budget)
	}

	outcomes := make([]model.Outcome, len(ids))
	workers := s.workerCount
	if workers > len(ids) {
		workers = len(ids)
	}
	if workers < 1 {
		workers = 1
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				// Budget is consulted between identifiers only; an
				// in-flight fetch is never cancelled by it.
				if !deadline.IsZero() && time.Now().After(deadline) {
					outcomes[i] = s.abandoned(ids[i])
					continue
				}
				outcomes[i] = s.ProcessIdentifier(ctx, ids[i])
			}
		}()
	}
	for i := range ids {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	res := aggregate(invocationID, outcomes, time.Since(start))
	metrics.RecordBatchDuration(float64(res.Elapsed.Milliseconds()))
	s.logger.Info(ctx, "batch complete",
		logger.String("invocationID", invocationID),
		logger.Int("processed", res.Processed),
		logger.Int("succeeded", res.Succeeded),
		logger.Int("failed", res.Failed),
		logger.Int("profilesScraped", res.ProfilesScraped),
		logger.Int("redeliver", len(res.Redeliver)),
		logger.Duration("elapsed", res.Elapsed),
	)
	return res
}

// ProcessIdentifier runs the full pipeline for one identifier and returns its
// outcome. Never returns an error: every failure is classified into the
// outcome's fault.
func (s *Service) ProcessIdentifier(ctx context.Context, id model.Identifier) model.Outcome {
	start := time.Now()
	out := model.Outcome{NodeID: id.NodeID, UserID: id.UserID, Attempted: true}

	if strings.TrimSpace(id.NodeID) == "" {
		out.Fault = faults.New(faults.KindProcessBadInput, "empty node id")
		return s.finish(ctx, out, start)
	}

	if err := s.store.TouchAttempt(ctx, id.NodeID); err != nil {
		s.logger.Debug(ctx, "attempt stamp failed",
			logger.String("nodeID", id.NodeID),
			logger.Error(err),
		)
	}

	node, err := s.store.Get(ctx, id.NodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			out.Fault = faults.New(faults.KindProcessBadInput, "node does not exist").WithNode(id.NodeID)
		} else {
			out.Fault = asFault(err)
		}
		return s.finish(ctx, out, start)
	}

	if node.Processed() {
		out.Success = true
		out.AlreadyProcessed = true
		return s.finish(ctx, out, start)
	}

	if id.UsernameHint == "" {
		id.UsernameHint = node.BestUsername()
	}
	if id.UsernameHint == "" {
		out.Fault = faults.New(faults.KindProcessBadInput, "no username to fetch by").WithNode(id.NodeID)
		s.markError(ctx, id.NodeID, out.Fault)
		return s.finish(ctx, out, start)
	}

	payload, attempts, err := s.chain.Fetch(ctx, id)
	out.Attempts = attempts
	if err != nil {
		var exhausted *fallback.ExhaustedError
		if errors.As(err, &exhausted) && exhausted.AllNotFound() {
			return s.finish(ctx, s.deleteUnreachable(ctx, id, out), start)
		}
		metrics.RecordFallbackExhausted()
		out.Fault = exhaustedFault(err, id.NodeID)
		return s.finish(ctx, out, start)
	}

	profile, err := s.transformer.Map(payload.Provider, payload.Body, id)
	if err != nil {
		metrics.RecordTransformFailure(payload.Provider)
		out.Fault = asFault(err)
		s.markError(ctx, id.NodeID, out.Fault)
		return s.finish(ctx, out, start)
	}

	score := s.scorer.Score(profile)
	profile, score = s.improveQuality(ctx, id, profile, score, &out)
	out.Score = &score

	if err := s.store.Save(ctx, id.NodeID, profile, score); err != nil {
		if faults.IsDuplicate(err) {
			out.Success = true
			out.AlreadyProcessed = true
			return s.finish(ctx, out, start)
		}
		out.Fault = asFault(err)
		return s.finish(ctx, out, start)
	}

	out.Success = true
	out.NewlyScraped = score.MeetsThreshold
	if profile.Username != "" && profile.Username != node.Username {
		s.mergeDuplicates(ctx, id.NodeID, profile.Username)
	}
	return s.finish(ctx, out, start)
}

// improveQuality refetches a below-threshold profile up to the configured
// retry count, growing the delay by half each round, and keeps whichever
// result scored best.
func (s *Service) improveQuality(ctx context.Context, id model.Identifier, best model.Profile, bestScore model.QualityScore, out *model.Outcome) (model.Profile, model.QualityScore) {
	if bestScore.MeetsThreshold || s.qualityRetries <= 0 {
		return best, bestScore
	}

	delay := s.qualityDelay
	for try := 0; try < s.qualityRetries && !bestScore.MeetsThreshold; try++ {
		if !sleepCtx(ctx, delay) {
			break
		}
		delay = delay * 3 / 2

		payload, attempts, err := s.chain.Fetch(ctx, id)
		out.Attempts = append(out.Attempts, attempts...)
		if err != nil {
			s.logger.Debug(ctx, "quality refetch failed",
				logger.String("nodeID", id.NodeID),
				logger.Int("try", try+1),
				logger.Error(err),
			)
			break
		}
		profile, err := s.transformer.Map(payload.Provider, payload.Body, id)
		if err != nil {
			break
		}
		score := s.scorer.Score(profile)
		s.logger.Debug(ctx, "quality refetch scored",
			logger.String("nodeID", id.NodeID),
			logger.Int("try", try+1),
			logger.Int("score", score.Overall),
			logger.Int("best", bestScore.Overall),
		)
		if score.Overall > bestScore.Overall {
			best, bestScore = profile, score
		}
	}

	if !bestScore.MeetsThreshold {
		metrics.RecordBelowThreshold()
	}
	return best, bestScore
}

// deleteUnreachable handles a chain where every provider answered not-found:
// the profile is gone, so the node is removed rather than retried forever.
func (s *Service) deleteUnreachable(ctx context.Context, id model.Identifier, out model.Outcome) model.Outcome {
	if err := s.store.Delete(ctx, id.NodeID); err != nil {
		s.logger.Warn(ctx, "failed to delete unreachable node",
			logger.String("nodeID", id.NodeID),
			logger.Error(err),
		)
		out.Fault = asFault(err)
		return out
	}
	s.logger.Info(ctx, "deleted unreachable node",
		logger.String("nodeID", id.NodeID),
		logger.String("username", id.UsernameHint),
	)
	out.Success = true
	out.Deleted = true
	return out
}

// markError best-effort records a terminal fault on the node.
func (s *Service) markError(ctx context.Context, nodeID string, f *faults.Fault) {
	if err := s.store.MarkError(ctx, nodeID, f); err != nil {
		s.logger.Warn(ctx, "failed to mark node error",
			logger.String("nodeID", nodeID),
			logger.Error(err),
		)
	}
}

// mergeDuplicates best-effort flags other unscraped nodes that hold the
// canonical username this node just claimed.
func (s *Service) mergeDuplicates(ctx context.Context, nodeID, username string) {
	n, err := s.store.MergeDuplicates(ctx, nodeID, username)
	if err != nil {
		s.logger.Warn(ctx, "failed to merge duplicate nodes",
			logger.String("nodeID", nodeID),
			logger.String("username", username),
			logger.Error(err),
		)
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "merged duplicate nodes",
			logger.String("nodeID", nodeID),
			logger.String("username", username),
			logger.Int("count", n),
		)
	}
}

// abandoned builds the outcome for an identifier the budget never let start.
func (s *Service) abandoned(id model.Identifier) model.Outcome {
	metrics.RecordNodeOutcome("abandoned")
	return model.Outcome{
		NodeID:    id.NodeID,
		UserID:    id.UserID,
		Attempted: false,
		Fault: faults.New(faults.KindProcessTimeout,
			"processing budget exhausted before start").WithNode(id.NodeID),
	}
}

// finish stamps the outcome, records its metrics and logs it.
func (s *Service) finish(ctx context.Context, out model.Outcome, start time.Time) model.Outcome {
	out.Elapsed = time.Since(start)

	switch {
	case out.Deleted:
		metrics.RecordNodeOutcome("deleted")
	case out.AlreadyProcessed:
		metrics.RecordNodeOutcome("already_processed")
	case out.Success:
		metrics.RecordNodeOutcome("success")
	default:
		metrics.RecordNodeOutcome("failed")
	}
	if out.NewlyScraped {
		metrics.RecordProfileScraped()
	}
	if out.Score != nil {
		metrics.RecordQualityScore(float64(out.Score.Overall))
	}

	if out.Fault != nil {
		metrics.RecordErrorByComponent("pipeline", string(out.Fault.Kind))
		s.logger.Warn(ctx, "identifier failed",
			logger.String("nodeID", out.NodeID),
			logger.String("kind", string(out.Fault.Kind)),
			logger.Error(out.Fault),
			logger.Duration("elapsed", out.Elapsed),
		)
		return out
	}

	s.logger.Info(ctx, "identifier processed",
		logger.String("nodeID", out.NodeID),
		logger.Duration("elapsed", out.Elapsed),
	)
	return out
}

// aggregate folds per-identifier outcomes into the batch response contract.
// Budget-abandoned identifiers stay out of the processed/failed counters but
// appear in Outcomes and Redeliver.
func aggregate(invocationID string, outcomes []model.Outcome, elapsed time.Duration) model.BatchResult {
	res := model.BatchResult{
		InvocationID: invocationID,
		Outcomes:     outcomes,
		Elapsed:      elapsed,
	}
	for _, o := range outcomes {
		if !o.Attempted {
			res.Redeliver = append(res.Redeliver, o.NodeID)
			continue
		}
		res.Processed++
		if o.Success {
			res.Succeeded++
		} else {
			res.Failed++
			if o.Retryable() {
				res.Redeliver = append(res.Redeliver, o.NodeID)
			}
		}
		if o.NewlyScraped {
			res.ProfilesScraped++
		}
	}
	return res
}

// exhaustedFault converts a chain exhaustion into one reportable fault. When
// any attempt failed transiently the last transient kind is surfaced so the
// redelivery policy fires; a permanently failed chain is process_exhausted.
func exhaustedFault(err error, nodeID string) *faults.Fault {
	var exhausted *fallback.ExhaustedError
	if !errors.As(err, &exhausted) {
		return asFault(err)
	}
	kind := faults.KindProcessExhausted
	for i := len(exhausted.Attempts) - 1; i >= 0; i-- {
		if a := exhausted.Attempts[i]; a.Err != nil && a.Err.Transient() {
			kind = a.Err.Kind
			break
		}
	}
	return faults.Wrap(kind, exhausted, "every provider failed").WithNode(nodeID)
}

// asFault normalizes any error into a classified fault.
func asFault(err error) *faults.Fault {
	if f, ok := faults.As(err); ok {
		return f
	}
	return faults.Wrap(faults.KindUnknown, err, "unclassified failure")
}

// sleepCtx waits for d; false means the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Enqueue submits one identifier for asynchronous processing. Concurrent
// duplicates of an in-flight node are suppressed by the dedupe guard.
func (s *Service) Enqueue(ctx context.Context, id model.Identifier) (EnqueueStatus, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return "", ErrNotStarted
	}
	if strings.TrimSpace(id.NodeID) == "" {
		return "", ErrEmptyNodeID
	}

	if s.guard.SeenAndRecord(ctx, id.NodeID) {
		metrics.RecordNodeDuplicate()
		s.logger.Debug(ctx, "duplicate node suppressed",
			logger.String("nodeID", id.NodeID),
		)
		return EnqueueDuplicate, nil
	}

	msg := nodequeue.Message{
		MessageID:    uuid.New(),
		NodeID:       id.NodeID,
		UsernameHint: id.UsernameHint,
	}
	if !s.queue.Enqueue(ctx, msg) {
		// Do not hold a dedupe slot for a message we dropped.
		s.guard.Unrecord(ctx, id.NodeID)
		return EnqueueFull, nil
	}
	return EnqueueAccepted, nil
}

// ResolveCandidates asks the repository for unscraped identifiers, applying
// the configured default and ceiling limits.
func (s *Service) ResolveCandidates(ctx context.Context, limit int) ([]model.Identifier, error) {
	if limit <= 0 {
		limit = s.batchLimit
	}
	if limit > s.batchLimitMax {
		limit = s.batchLimitMax
	}
	return s.store.Candidates(ctx, limit)
}

// Providers reports the configured chain in order. With probe set, each
// provider is pinged for reachability.
func (s *Service) Providers(ctx context.Context, probe bool) []ProviderInfo {
	fetchers := s.chain.Providers()
	infos := make([]ProviderInfo, 0, len(fetchers))
	for i, f := range fetchers {
		info := ProviderInfo{Name: f.Name(), Position: i + 1}
		if r, ok := f.(interface{ Ready() bool }); ok {
			info.Configured = r.Ready()
		}
		if h, ok := f.(interface{ Host() string }); ok {
			info.Host = h.Host()
		}
		if probe {
			if p, ok := f.(providers.Prober); ok {
				st := p.Ping(ctx)
				healthy := st.Healthy
				info.Configured = st.Configured
				info.Healthy = &healthy
				info.LatencyMS = st.LatencyMS
				info.Error = st.Error
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// SeenAndRecord atomically checks if a node id is in flight and records it if
// not. This is the ONLY method for duplicate detection - thread-safe and
// atomic.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.guard.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordNodeDuplicate()
	}
	return seen
}

// Unrecord removes a node id from the in-flight set, allowing it to be
// submitted again.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.guard.Unrecord(ctx, id)
}

// InFlight returns the number of node ids currently held by the guard.
func (s *Service) InFlight() int64 {
	if s.guard == nil {
		return 0
	}
	return s.guard.Size()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":   s.started,
		"workers":   s.workerCount,
		"providers": s.chain.Names(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queue_depth"] = queueLen
		stats["in_flight"] = s.guard.Size()
		stats["uptime_seconds"] = int(time.Since(s.startedAt).Seconds())
		metrics.UpdateQueueSize(queueLen)
	}

	if nodes, err := s.store.Stats(ctx); err == nil {
		stats["nodes"] = nodes
	} else {
		s.logger.Warn(ctx, "repository stats unavailable", logger.Error(err))
	}

	return stats
}
