package advisor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/carbon-advisor/internal/domain"
	"github.com/PabloGalante/carbon-advisor/internal/observability"
)

// Greeting is the assistant message every session starts with.
const Greeting = "Hello! I'm your advisor. I can help with real-time research, complex financial analysis, or mapping forest reserves."

// Executor runs one routed query. *Router is the production implementation.
type Executor interface {
	Execute(ctx context.Context, utterance string, mode domain.Mode) Outcome
}

// Snapshot is a read-only copy of a session's state for rendering.
type Snapshot struct {
	ID        domain.SessionID
	Messages  []domain.Message
	Mode      domain.Mode
	Pending   bool
	CreatedAt time.Time
}

// state is the conversational state. Transitions below are pure: they
// return a new state and never touch the receiver's slices in place.
type state struct {
	messages []domain.Message
	mode     domain.Mode
	pending  bool
	closed   bool
}

func (st state) withUserTurn(msg domain.Message) state {
	st.messages = appendMessage(st.messages, msg)
	st.pending = true
	return st
}

func (st state) withAssistantTurn(msg domain.Message) state {
	st.messages = appendMessage(st.messages, msg)
	st.pending = false
	return st
}

func (st state) withMode(mode domain.Mode) state {
	st.mode = mode
	return st
}

func appendMessage(msgs []domain.Message, msg domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, msg)
}

// Session owns one advisor conversation. It is the only writer of its
// message log; at most one query is in flight at a time.
type Session struct {
	id        domain.SessionID
	createdAt time.Time
	exec      Executor
	now       func() time.Time
	logger    *slog.Logger

	// base is cancelled by Close; in-flight calls derive from it.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	st       state
	subs     map[int]chan domain.Message
	nextSub  int
	inflight sync.WaitGroup
}

// subscriberBuffer is how many appended messages a subscriber may fall
// behind before it starts missing them.
const subscriberBuffer = 16

// SessionOption configures a Session built by Activate.
type SessionOption func(*Session)

// WithClock overrides time.Now for message timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithSessionID fixes the session ID instead of generating one.
func WithSessionID(id domain.SessionID) SessionOption {
	return func(s *Session) { s.id = id }
}

// WithSessionLogger sets the base logger for the session.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// Activate creates a session seeded with the greeting, in DefaultMode and idle.
func Activate(exec Executor, opts ...SessionOption) *Session {
	s := &Session{
		exec: exec,
		now:  time.Now,
		subs: make(map[int]chan domain.Message),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = domain.SessionID(uuid.NewString())
	}
	if s.logger == nil {
		s.logger = observability.Logger()
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	s.createdAt = s.now()

	s.st = state{mode: domain.DefaultMode}.withAssistantTurn(domain.Message{
		ID:        newMessageID(),
		Role:      domain.RoleAssistant,
		Text:      Greeting,
		Citations: []domain.Citation{},
		CreatedAt: s.createdAt,
		Mode:      domain.DefaultMode,
	})

	return s
}

func (s *Session) ID() domain.SessionID {
	return s.id
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]domain.Message, len(s.st.messages))
	copy(msgs, s.st.messages)

	return Snapshot{
		ID:        s.id,
		Messages:  msgs,
		Mode:      s.st.mode,
		Pending:   s.st.pending,
		CreatedAt: s.createdAt,
	}
}

func (s *Session) Mode() domain.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.mode
}

func (s *Session) Pending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.pending
}

// SetMode changes the mode used by the next Send. A query already in
// flight keeps the mode it was sent with.
func (s *Session) SetMode(mode domain.Mode) error {
	parsed, err := domain.ParseMode(string(mode))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.st = s.st.withMode(parsed)
	s.mu.Unlock()
	return nil
}

// Turn is an accepted Send. User is already in the log; Reply yields the
// assistant message once it has been appended, then closes.
type Turn struct {
	User  domain.Message
	Reply <-chan domain.Message
}

// Send appends the user turn right away and queries the router in the
// background.
//
// Send is rejected (nil, false) with no state change when the utterance is
// blank, a previous Send is still pending, or the session is closed.
func (s *Session) Send(ctx context.Context, utterance string) (*Turn, bool) {
	if strings.TrimSpace(utterance) == "" {
		return nil, false
	}

	log := observability.WithContext(ctx, s.logger).With("session_id", s.id)

	s.mu.Lock()
	if pending, closed := s.st.pending, s.st.closed; pending || closed {
		s.mu.Unlock()
		log.Debug("send rejected", "pending", pending, "closed", closed)
		return nil, false
	}

	mode := s.st.mode
	userMsg := domain.Message{
		ID:        newMessageID(),
		Role:      domain.RoleUser,
		Text:      utterance,
		Citations: []domain.Citation{},
		CreatedAt: s.now(),
		Mode:      mode,
	}
	s.st = s.st.withUserTurn(userMsg)
	s.publish(userMsg)
	s.inflight.Add(1)
	s.mu.Unlock()

	log.Info("sending message", "mode", mode)

	// The call outlives the caller's ctx (an HTTP request may return
	// first) but keeps its values for request-scoped logging.
	callCtx, stop := mergeCancel(context.WithoutCancel(ctx), s.base)

	done := make(chan domain.Message, 1)
	go func() {
		defer s.inflight.Done()
		defer stop()

		out := s.exec.Execute(callCtx, utterance, mode)

		reply := domain.Message{
			ID:        newMessageID(),
			Role:      domain.RoleAssistant,
			Text:      out.Text,
			Citations: out.Citations,
			CreatedAt: s.now(),
			Mode:      mode,
		}
		if reply.Citations == nil {
			reply.Citations = []domain.Citation{}
		}

		s.mu.Lock()
		s.st = s.st.withAssistantTurn(reply)
		s.publish(reply)
		s.mu.Unlock()

		log.Info("send message completed", "outcome", out.Kind, "citations", len(reply.Citations))

		done <- reply
		close(done)
	}()

	return &Turn{User: userMsg, Reply: done}, true
}

// Wait blocks until no query is in flight.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Close tears the session down: further sends are rejected and an
// in-flight query is cancelled, which still appends the fallback turn.
func (s *Session) Close() {
	s.mu.Lock()
	s.st.closed = true
	if !s.st.pending {
		s.closeSubscribers()
	}
	s.mu.Unlock()
	s.cancel()
}

// Subscribe streams every message appended after the call. The channel is
// closed by stop, or once the session is closed and idle. A subscriber
// more than subscriberBuffer messages behind misses the overflow.
func (s *Session) Subscribe() (msgs <-chan domain.Message, stop func()) {
	ch := make(chan domain.Message, subscriberBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.closed && !s.st.pending {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() { s.unsubscribe(id) }
}

func (s *Session) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// publish fans msg out to subscribers. Callers hold s.mu.
func (s *Session) publish(msg domain.Message) {
	for id, ch := range s.subs {
		select {
		case ch <- msg:
		default:
			s.logger.Warn("subscriber lagging, message dropped",
				"session_id", s.id, "subscriber", id, "message_id", msg.ID)
		}
	}
	// A closed session publishes nothing after its last reply.
	if s.st.closed && !s.st.pending {
		s.closeSubscribers()
	}
}

func (s *Session) closeSubscribers() {
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// mergeCancel returns a context carrying parent's values that is cancelled
// when either parent or other is done.
func mergeCancel(parent, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(other, func() {
		cancel(context.Cause(other))
	})
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

func newMessageID() domain.MessageID {
	return domain.MessageID(uuid.NewString())
}
