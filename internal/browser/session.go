package browser

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zoreu/cfresolver/internal/config"
	"github.com/zoreu/cfresolver/internal/observability"
)

// State describes the session lifecycle.
type State int32

const (
	// StateAbsent means no engine process exists.
	StateAbsent State = iota
	// StateReady means the engine is live and idle.
	StateReady
	// StateBusy means a fetch is in flight against the engine.
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Session owns the single live browser engine. Starting the engine costs
// hundreds of milliseconds to seconds, so reuse is the default and a full
// restart is reserved for unrecoverable pollution or crash. The engine
// handle never leaves this package except through the Engine interface
// handed out by Acquire.
//
// Session methods are not self-serializing: the orchestrator holds an
// exclusive lock around the whole acquire/dispatch/clear sequence, and the
// internal mutex only guards the state fields against observers such as
// the health endpoint.
type Session struct {
	logger  *zap.Logger
	cfg     config.BrowserConfig
	metrics *observability.Metrics
	factory EngineFactory

	mu     sync.Mutex
	engine Engine
	state  State
}

// Option configures a Session.
type Option func(*Session)

// WithEngineFactory overrides how the session creates engines. Tests use
// this to substitute fakes.
func WithEngineFactory(f EngineFactory) Option {
	return func(s *Session) { s.factory = f }
}

// NewSession creates a session with no live engine. The engine starts
// lazily on the first Acquire.
func NewSession(cfg config.BrowserConfig, logger *zap.Logger, metrics *observability.Metrics, opts ...Option) *Session {
	s := &Session{
		logger:  logger.Named("session"),
		cfg:     cfg,
		metrics: metrics,
		factory: NewChromeEngine,
		state:   StateAbsent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire returns the live engine, creating it if absent, and marks the
// session busy for the duration of the fetch.
func (s *Session) Acquire(ctx context.Context) (Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		s.logger.Info("Starting browser engine")
		eng, err := s.factory(ctx, s.cfg, s.logger)
		if err != nil {
			s.state = StateAbsent
			return nil, fmt.Errorf("engine initialization failed: %w", err)
		}
		s.engine = eng
	}
	s.state = StateBusy
	return s.engine, nil
}

// Clear performs a best-effort in-place reset: cookies and both
// client-side storage scopes are wiped without restarting the engine.
// When the in-place reset fails the session falls back to a full restart.
// Either way the caller observes success; the expensive path is visible
// only in logs and the restart counter.
func (s *Session) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		s.state = StateAbsent
		return
	}

	if err := s.engine.ClearState(ctx); err != nil {
		s.logger.Warn("Failed to reset session state in place, restarting engine", zap.Error(err))
		if s.metrics != nil {
			s.metrics.SessionRestarts.Inc()
		}
		if rerr := s.restartLocked(ctx); rerr != nil {
			s.logger.Error("Engine recreation after failed reset also failed, session left absent",
				zap.Error(rerr))
		}
		return
	}

	if s.metrics != nil {
		s.metrics.SessionResets.Inc()
	}
	s.state = StateReady
}

// Restart destroys and recreates the engine, leaving the session ready.
// It is the recovery path taken after any fetch failure.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartLocked(ctx)
}

func (s *Session) restartLocked(ctx context.Context) error {
	s.destroyLocked(ctx)

	eng, err := s.factory(ctx, s.cfg, s.logger)
	if err != nil {
		s.state = StateAbsent
		return fmt.Errorf("engine recreation failed: %w", err)
	}
	s.engine = eng
	s.state = StateReady
	return nil
}

// Destroy terminates the engine process. It is idempotent and swallows
// termination errors.
func (s *Session) Destroy(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyLocked(ctx)
}

func (s *Session) destroyLocked(ctx context.Context) {
	if s.engine == nil {
		s.state = StateAbsent
		return
	}
	s.logger.Info("Shutting down browser engine")
	if err := s.engine.Close(ctx); err != nil {
		s.logger.Warn("Error while terminating browser engine", zap.Error(err))
	}
	s.engine = nil
	s.state = StateAbsent
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
