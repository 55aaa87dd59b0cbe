package proxy

import (
	"context"

	"go.uber.org/zap"

	"github.com/zoreu/cfresolver/internal/browser"
	"github.com/zoreu/cfresolver/internal/observability"
)

// RecoveryPolicy decides how to bring the session back after a fetch
// failure.
type RecoveryPolicy interface {
	Recover(ctx context.Context, session *browser.Session)
}

// restartPolicy unconditionally destroys and recreates the session. Any
// failure mid-fetch leaves the engine's navigation and DOM state in an
// unknown condition, so the safe default is a full restart rather than
// surgical repair. Coarse on purpose: correctness over efficiency.
type restartPolicy struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRestartPolicy returns the production recovery policy.
func NewRestartPolicy(logger *zap.Logger, metrics *observability.Metrics) RecoveryPolicy {
	return &restartPolicy{
		logger:  logger.Named("recovery"),
		metrics: metrics,
	}
}

// Recover restarts the session. Recovery is best-effort: its own errors
// are logged and counted, never propagated, so the original fetch failure
// stays the one the caller sees.
func (p *restartPolicy) Recover(ctx context.Context, session *browser.Session) {
	p.logger.Warn("Recovering session after fetch failure")
	if p.metrics != nil {
		p.metrics.Recoveries.Inc()
	}
	if err := session.Restart(ctx); err != nil {
		p.logger.Error("Session recovery failed, next fetch will recreate the engine", zap.Error(err))
	}
}
