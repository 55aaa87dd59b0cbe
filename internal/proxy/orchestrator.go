package proxy

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zoreu/cfresolver/internal/browser"
	"github.com/zoreu/cfresolver/internal/observability"
)

// Orchestrator is the facade the HTTP layer calls: it guarantees a live
// session, delegates to the dispatcher, clears state for reuse on success
// and invokes the recovery policy on failure.
//
// FetchOnce calls are serialized by an exclusive lock. There is exactly
// one engine process-wide; two interleaved fetches against it would
// corrupt each other's navigation state, so each admitted request runs
// the full acquire/dispatch/clear-or-recover sequence before the session
// is handed to the next one.
type Orchestrator struct {
	mu sync.Mutex

	session    *browser.Session
	dispatcher *Dispatcher
	recovery   RecoveryPolicy
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewOrchestrator wires the session, dispatcher and recovery policy
// together. The session is owned by the orchestrator from here on.
func NewOrchestrator(
	session *browser.Session,
	dispatcher *Dispatcher,
	recovery RecoveryPolicy,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		session:    session,
		dispatcher: dispatcher,
		recovery:   recovery,
		logger:     logger.Named("orchestrator"),
		metrics:    metrics,
	}
}

// Session exposes the managed session for lifecycle wiring (shutdown,
// health reporting). Fetch traffic goes through FetchOnce only.
func (o *Orchestrator) Session() *browser.Session {
	return o.session
}

// FetchOnce executes one fetch end to end. On success the session state
// is cleared for reuse; on failure the session is recreated and the
// original staged error is returned. The failed request is never retried
// automatically. After FetchOnce returns, the session is ready for the
// next call either way.
func (o *Orchestrator) FetchOnce(ctx context.Context, spec RequestSpec) (FetchResult, error) {
	if err := spec.Validate(); err != nil {
		return FetchResult{}, fetchErrorf(StageNavigation, err, "invalid request: %v", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	started := time.Now()
	logger := o.logger.With(
		zap.String("fetch_id", uuid.NewString()),
		zap.String("url", spec.URL),
		zap.String("strategy", spec.Plan().String()),
	)

	eng, err := o.session.Acquire(ctx)
	if err != nil {
		logger.Error("Engine initialization failed", zap.Error(err))
		ferr := fetchErrorf(StageInit, err, "browser engine unavailable: %v", err)
		o.failed(ctx, ferr)
		return FetchResult{}, ferr
	}

	result, err := o.dispatcher.Dispatch(ctx, eng, spec)
	if err != nil {
		logger.Error("Fetch failed", zap.String("stage", string(StageOf(err))), zap.Error(err))
		o.failed(ctx, err)
		return FetchResult{}, err
	}

	// Clearing is fails-soft: the caller always observes success, even
	// when the session had to take the full-restart path internally.
	o.session.Clear(ctx)

	if o.metrics != nil {
		o.metrics.FetchesTotal.WithLabelValues(spec.Plan().String()).Inc()
		o.metrics.FetchDuration.Observe(time.Since(started).Seconds())
	}
	logger.Info("Fetch completed",
		zap.Int("content_length", len(result.Content)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// failed records the failure and runs recovery. Recovery is a side
// effect, not a retry: the original error propagates untouched.
func (o *Orchestrator) failed(ctx context.Context, err error) {
	if o.metrics != nil {
		o.metrics.FetchFailures.WithLabelValues(string(StageOf(err))).Inc()
	}
	o.recovery.Recover(ctx, o.session)
}

// Shutdown tears the session down exactly once at process exit.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session.Destroy(ctx)
}
