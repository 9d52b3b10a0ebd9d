package livecall

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"call-assist-service/internal/observability/logging"
	"call-assist-service/internal/service/session"
)

// ErrCallNotFound is returned for an unknown or evicted call ID.
var ErrCallNotFound = errors.New("call not found")

// DefaultMaxCalls bounds how many calls are retained for viewing and report download.
const DefaultMaxCalls = 100

// Manager owns the calls of the process. Each call gets a fresh session, so counters
// from an earlier call can never suppress a trigger in a new one.
type Manager struct {
	cfg      PipelineConfig
	maxCalls int
	logger   zerolog.Logger

	mu    sync.RWMutex
	calls map[string]*Pipeline
	order []string // oldest first
}

// NewManager creates a manager. cfg is the template for every call's pipeline.
func NewManager(cfg PipelineConfig, maxCalls int) *Manager {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}
	return &Manager{
		cfg:      cfg,
		maxCalls: maxCalls,
		logger:   logging.WithComponent("livecall"),
		calls:    make(map[string]*Pipeline),
	}
}

// StartCall creates a call and starts it. The pipeline is returned even when the
// handshake fails, so the caller can show the banner and offer a retry.
func (m *Manager) StartCall(ctx context.Context) (*Pipeline, error) {
	id := uuid.NewString()
	p := NewPipeline(id, m.cfg)

	m.mu.Lock()
	m.evictLocked(m.maxCalls - 1)
	m.calls[id] = p
	m.order = append(m.order, id)
	m.mu.Unlock()

	m.logger.Info().Str("callId", id).Msg("Call created")
	return p, p.Start(ctx)
}

// Get returns the pipeline for id.
func (m *Manager) Get(id string) (*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.calls[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	return p, nil
}

// Live returns the number of calls currently streaming.
func (m *Manager) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.calls {
		if p.Status() == session.StatusLive {
			n++
		}
	}
	return n
}

// Shutdown stops every live call concurrently and waits for in-flight analysis to
// finish or ctx to end. It returns the first stop failure.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	live := make([]*Pipeline, 0, len(m.calls))
	for _, p := range m.calls {
		if p.Status() == session.StatusLive {
			live = append(live, p)
		}
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, p := range live {
		g.Go(func() error {
			err := p.Stop(ctx)
			if errors.Is(err, session.ErrInvalidTransition) {
				return nil // ended on its own meanwhile
			}
			if err != nil {
				m.logger.Warn().Err(err).Str("callId", p.ID()).Msg("Error stopping call on shutdown")
				return fmt.Errorf("stop call %s: %w", p.ID(), err)
			}
			return nil
		})
	}
	stopErr := g.Wait()

	done := make(chan struct{})
	go func() {
		m.cfg.Dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
		return stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// evictLocked drops the oldest calls that are not streaming until at most keep remain.
func (m *Manager) evictLocked(keep int) {
	for i := 0; len(m.calls) > keep && i < len(m.order); {
		id := m.order[i]
		st := m.calls[id].Status()
		if st == session.StatusLive || st == session.StatusConnecting {
			i++
			continue
		}
		delete(m.calls, id)
		m.order = append(m.order[:i], m.order[i+1:]...)
		m.logger.Debug().Str("callId", id).Msg("Call evicted")
	}
}
