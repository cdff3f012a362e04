package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanivvds/portfolio-assistant/internal/chat"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
	"github.com/yanivvds/portfolio-assistant/pkg/metrics"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionFactory builds a session for id opened on project.
type SessionFactory func(id, project string) *chat.Session

// Registry holds the open chat sessions of the site backend.
type Registry struct {
	factory SessionFactory
	idle    time.Duration
	logger  *logger.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*chat.Session
}

// NewRegistry creates a registry that expires sessions idle longer than idle.
func NewRegistry(factory SessionFactory, idle time.Duration, log *logger.Logger) *Registry {
	return &Registry{
		factory:  factory,
		idle:     idle,
		logger:   log,
		now:      time.Now,
		sessions: make(map[string]*chat.Session),
	}
}

// Create opens a new session.
func (r *Registry) Create(project string) *chat.Session {
	id := uuid.Must(uuid.NewV7()).String()
	s := r.factory(id, project)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	metrics.ChatSessionsActive.Inc()
	r.logger.Info("chat session opened", zap.String("session_id", id), zap.String("project", project))
	return s
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*chat.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close removes the session and cancels its in-flight turn.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	metrics.ChatSessionsActive.Dec()
	r.logger.Info("chat session closed", zap.String("session_id", id))
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the idle timeout and returns how
// many were closed. Sessions with a turn in flight are kept.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	var expired []string
	r.mu.RLock()
	for id, s := range r.sessions {
		if !s.Typing() && s.LastActive().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, id := range expired {
		if r.Close(id) == nil {
			n++
		}
	}
	if n > 0 {
		r.logger.Info("expired idle chat sessions", zap.Int("count", n))
	}
	return n
}

// Run sweeps periodically until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idle / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Close(id)
	}
}
