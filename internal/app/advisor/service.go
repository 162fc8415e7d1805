package advisor

import (
	"context"
	"errors"

	"github.com/PabloGalante/carbon-advisor/internal/domain"
	"github.com/PabloGalante/carbon-advisor/internal/observability"
)

// ErrSessionNotFound is returned for an unknown or ended session.
var ErrSessionNotFound = errors.New("session not found")

// Registry holds the live sessions of a process.
type Registry interface {
	Put(session *Session) error
	Get(id domain.SessionID) (*Session, error)
	Delete(id domain.SessionID) (*Session, error)
	Drain() []*Session
	Len() int
}

// Service activates, looks up and tears down advisor sessions.
type Service struct {
	exec     Executor
	registry Registry
	opts     []SessionOption
}

func NewService(exec Executor, registry Registry, opts ...SessionOption) *Service {
	return &Service{
		exec:     exec,
		registry: registry,
		opts:     opts,
	}
}

// StartSession activates a new session and registers it.
func (s *Service) StartSession(ctx context.Context) (*Session, error) {
	session := Activate(s.exec, s.opts...)

	log := observability.LoggerFromContext(ctx).With("session_id", session.ID())

	if err := s.registry.Put(session); err != nil {
		session.Close()
		log.Error("failed to register session", "error", err)
		return nil, err
	}

	log.Info("session started", "live_sessions", s.registry.Len())
	return session, nil
}

// Session returns a live session.
func (s *Service) Session(ctx context.Context, id domain.SessionID) (*Session, error) {
	return s.registry.Get(id)
}

// EndSession unregisters and closes a session. The in-flight query, if
// any, is cancelled.
func (s *Service) EndSession(ctx context.Context, id domain.SessionID) error {
	session, err := s.registry.Delete(id)
	if err != nil {
		return err
	}
	session.Close()

	observability.LoggerFromContext(ctx).Info("session ended",
		"session_id", id,
		"messages", len(session.Snapshot().Messages),
	)
	return nil
}

// Shutdown ends every live session and waits for their in-flight queries.
func (s *Service) Shutdown(ctx context.Context) {
	sessions := s.registry.Drain()
	for _, session := range sessions {
		session.Close()
	}
	for _, session := range sessions {
		session.Wait()
	}
	observability.LoggerFromContext(ctx).Info("advisor sessions drained", "count", len(sessions))
}
