package advisor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PabloGalante/carbon-advisor/internal/adapters/llm"
	"github.com/PabloGalante/carbon-advisor/internal/app/advisor"
	"github.com/PabloGalante/carbon-advisor/internal/domain"
)

// gatedExecutor holds every Execute until release is closed or ctx is done.
type gatedExecutor struct {
	release chan struct{}
	started chan domain.Mode
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{
		release: make(chan struct{}),
		started: make(chan domain.Mode, 8),
	}
}

func (e *gatedExecutor) Execute(ctx context.Context, utterance string, mode domain.Mode) advisor.Outcome {
	e.started <- mode
	select {
	case <-e.release:
		return advisor.Outcome{Kind: advisor.OutcomeSuccess, Text: "answer to " + utterance}
	case <-ctx.Done():
		return advisor.Outcome{Kind: advisor.OutcomeFallback, Text: advisor.FallbackText, Citations: []domain.Citation{}, Err: ctx.Err()}
	}
}

func waitReply(t *testing.T, turn *advisor.Turn) domain.Message {
	t.Helper()
	select {
	case msg, ok := <-turn.Reply:
		if !ok {
			t.Fatalf("reply channel closed without a message")
		}
		return msg
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for reply")
	}
	return domain.Message{}
}

func TestActivateSeedsGreeting(t *testing.T) {
	s := advisor.Activate(advisor.NewRouter(llm.NewMockLLM()))
	defer s.Close()

	snap := s.Snapshot()
	if snap.ID == "" {
		t.Fatalf("expected session id")
	}
	if len(snap.Messages) != 1 {
		t.Fatalf("expected 1 seeded message, got %d", len(snap.Messages))
	}
	greeting := snap.Messages[0]
	if greeting.Role != domain.RoleAssistant || greeting.Text != advisor.Greeting {
		t.Fatalf("unexpected greeting: %+v", greeting)
	}
	if snap.Pending {
		t.Fatalf("new session must not be pending")
	}
	if snap.Mode != domain.ModeSearch {
		t.Fatalf("default mode = %s, want search", snap.Mode)
	}
}

func TestSendAppendsTwoMessagesForEveryMode(t *testing.T) {
	for _, mode := range domain.Modes() {
		s := advisor.Activate(advisor.NewRouter(llm.NewMockLLM()))

		if err := s.SetMode(mode); err != nil {
			t.Fatalf("SetMode(%s): %v", mode, err)
		}

		turn, ok := s.Send(context.Background(), "How many tonnes per acre?")
		if !ok {
			t.Fatalf("mode %s: send rejected", mode)
		}
		if turn.User.Role != domain.RoleUser || turn.User.Text != "How many tonnes per acre?" {
			t.Fatalf("mode %s: user message = %+v", mode, turn.User)
		}

		reply := waitReply(t, turn)
		if reply.Role != domain.RoleAssistant || reply.Mode != mode {
			t.Fatalf("mode %s: reply = %+v", mode, reply)
		}

		snap := s.Snapshot()
		if len(snap.Messages) != 3 {
			t.Fatalf("mode %s: expected greeting + 2 messages, got %d", mode, len(snap.Messages))
		}
		if snap.Pending {
			t.Fatalf("mode %s: still pending after reply", mode)
		}
		if snap.Messages[1].Role != domain.RoleUser || snap.Messages[2].Role != domain.RoleAssistant {
			t.Fatalf("mode %s: wrong roles: %+v", mode, snap.Messages)
		}
		s.Close()
	}
}

func TestSendUserMessageVisibleWhilePending(t *testing.T) {
	exec := newGatedExecutor()
	s := advisor.Activate(exec)
	defer s.Close()

	turn, ok := s.Send(context.Background(), "hello")
	if !ok {
		t.Fatalf("send rejected")
	}
	<-exec.started

	snap := s.Snapshot()
	if !snap.Pending {
		t.Fatalf("expected pending while call in flight")
	}
	if len(snap.Messages) != 2 || snap.Messages[1].Text != "hello" {
		t.Fatalf("user message not appended immediately: %+v", snap.Messages)
	}

	close(exec.release)
	waitReply(t, turn)

	if s.Pending() {
		t.Fatalf("expected idle after reply")
	}
}

func TestSendWhilePendingIsRejected(t *testing.T) {
	exec := newGatedExecutor()
	s := advisor.Activate(exec)
	defer s.Close()

	turn, ok := s.Send(context.Background(), "first")
	if !ok {
		t.Fatalf("first send rejected")
	}
	<-exec.started

	before := len(s.Snapshot().Messages)
	second, ok := s.Send(context.Background(), "second")
	if ok || second != nil {
		t.Fatalf("expected second send to be rejected")
	}
	if after := len(s.Snapshot().Messages); after != before {
		t.Fatalf("rejected send changed the log: %d -> %d", before, after)
	}

	close(exec.release)
	waitReply(t, turn)

	if got := len(s.Snapshot().Messages); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}
}

func TestSendBlankIsRejected(t *testing.T) {
	s := advisor.Activate(advisor.NewRouter(llm.NewMockLLM()))
	defer s.Close()

	for _, in := range []string{"", "   ", "\n\t"} {
		if _, ok := s.Send(context.Background(), in); ok {
			t.Fatalf("blank utterance %q accepted", in)
		}
	}
	if got := len(s.Snapshot().Messages); got != 1 {
		t.Fatalf("blank sends changed the log: %d messages", got)
	}
}

func TestSequentialSendsStayOrdered(t *testing.T) {
	s := advisor.Activate(advisor.NewRouter(llm.NewMockLLM()))
	defer s.Close()

	first, ok := s.Send(context.Background(), "first question")
	if !ok {
		t.Fatalf("first send rejected")
	}
	waitReply(t, first)

	second, ok := s.Send(context.Background(), "second question")
	if !ok {
		t.Fatalf("second send rejected")
	}
	waitReply(t, second)

	msgs := s.Snapshot().Messages
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	wantRoles := []domain.Role{
		domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant,
	}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Fatalf("message %d role = %s, want %s", i, msgs[i].Role, want)
		}
	}
	if msgs[1].Text != "first question" || msgs[3].Text != "second question" {
		t.Fatalf("user messages out of order: %q, %q", msgs[1].Text, msgs[3].Text)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("message %d timestamp before message %d", i, i-1)
		}
	}
}

func TestSendFailureAppendsApology(t *testing.T) {
	gen := llm.NewMockLLM()
	gen.FailWith(errors.New("network down"))
	s := advisor.Activate(advisor.NewRouter(gen))
	defer s.Close()

	turn, ok := s.Send(context.Background(), "What is the IRR target?")
	if !ok {
		t.Fatalf("send rejected")
	}
	reply := waitReply(t, turn)

	if reply.Text != advisor.FallbackText {
		t.Fatalf("reply text = %q, want apology", reply.Text)
	}
	if len(reply.Citations) != 0 {
		t.Fatalf("fallback must not carry citations: %+v", reply.Citations)
	}
	if s.Pending() {
		t.Fatalf("session stuck pending after failure")
	}

	// The conversation continues after a failure.
	gen.FailWith(nil)
	turn, ok = s.Send(context.Background(), "Try again")
	if !ok {
		t.Fatalf("send after failure rejected")
	}
	if reply := waitReply(t, turn); reply.Text == advisor.FallbackText {
		t.Fatalf("expected a real answer after recovery")
	}
}

func TestSendSearchCarriesWebCitations(t *testing.T) {
	s := advisor.Activate(advisor.NewRouter(llm.NewMockLLM()))
	defer s.Close()

	turn, _ := s.Send(context.Background(), "carbon price today")
	reply := waitReply(t, turn)

	if len(reply.Citations) != 1 || reply.Citations[0].Kind != domain.SourceWeb {
		t.Fatalf("citations = %+v, want one web citation", reply.Citations)
	}
}

func TestSetModeDoesNotAffectInFlight(t *testing.T) {
	exec := newGatedExecutor()
	s := advisor.Activate(exec)
	defer s.Close()

	turn, _ := s.Send(context.Background(), "question")
	if got := <-exec.started; got != domain.ModeSearch {
		t.Fatalf("in-flight mode = %s, want search", got)
	}

	if err := s.SetMode(domain.ModeThinking); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	close(exec.release)

	reply := waitReply(t, turn)
	if reply.Mode != domain.ModeSearch {
		t.Fatalf("reply mode = %s, want search", reply.Mode)
	}
	if s.Mode() != domain.ModeThinking {
		t.Fatalf("mode = %s, want thinking", s.Mode())
	}

	next, _ := s.Send(context.Background(), "follow up")
	if got := <-exec.started; got != domain.ModeThinking {
		t.Fatalf("next send mode = %s, want thinking", got)
	}
	waitReply(t, next)
}

func TestSetModeRejectsUnknown(t *testing.T) {
	s := advisor.Activate(advisor.NewRouter(llm.NewMockLLM()))
	defer s.Close()

	if err := s.SetMode(domain.Mode("telepathy")); !errors.Is(err, domain.ErrUnknownMode) {
		t.Fatalf("err = %v, want ErrUnknownMode", err)
	}
	if s.Mode() != domain.ModeSearch {
		t.Fatalf("mode changed on invalid input: %s", s.Mode())
	}
}

func TestCloseCancelsInFlight(t *testing.T) {
	exec := newGatedExecutor()
	s := advisor.Activate(exec)

	turn, _ := s.Send(context.Background(), "long question")
	<-exec.started

	s.Close()
	reply := waitReply(t, turn)
	if reply.Text != advisor.FallbackText {
		t.Fatalf("reply after close = %q, want fallback", reply.Text)
	}
	s.Wait()

	if s.Pending() {
		t.Fatalf("pending after close")
	}
	if _, ok := s.Send(context.Background(), "after close"); ok {
		t.Fatalf("send accepted after close")
	}
}

func TestCallerContextCancelDoesNotAbortCall(t *testing.T) {
	exec := newGatedExecutor()
	s := advisor.Activate(exec)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	turn, _ := s.Send(ctx, "question")
	<-exec.started
	cancel()

	close(exec.release)
	if reply := waitReply(t, turn); reply.Text != "answer to question" {
		t.Fatalf("reply = %q, want the real answer", reply.Text)
	}
}

func TestActivateOptions(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := advisor.Activate(advisor.NewRouter(llm.NewMockLLM()),
		advisor.WithSessionID("fixed-id"),
		advisor.WithClock(func() time.Time { return fixed }),
	)
	defer s.Close()

	snap := s.Snapshot()
	if snap.ID != "fixed-id" {
		t.Fatalf("id = %q", snap.ID)
	}
	if !snap.CreatedAt.Equal(fixed) || !snap.Messages[0].CreatedAt.Equal(fixed) {
		t.Fatalf("clock option not applied: %v", snap.CreatedAt)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := advisor.Activate(advisor.NewRouter(llm.NewMockLLM()))
	defer s.Close()

	snap := s.Snapshot()
	snap.Messages[0].Text = "tampered"

	if s.Snapshot().Messages[0].Text != advisor.Greeting {
		t.Fatalf("snapshot shares storage with the session")
	}
}

func TestSubscribeStreamsAppendedMessages(t *testing.T) {
	exec := newGatedExecutor()
	s := advisor.Activate(exec)

	msgs, stop := s.Subscribe()
	defer stop()

	turn, _ := s.Send(context.Background(), "question")
	<-exec.started
	close(exec.release)
	waitReply(t, turn)

	for _, want := range []domain.Role{domain.RoleUser, domain.RoleAssistant} {
		select {
		case msg := <-msgs:
			if msg.Role != want {
				t.Fatalf("streamed role = %s, want %s", msg.Role, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s message", want)
		}
	}

	s.Close()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatalf("unexpected message after close")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("subscription not closed with the session")
	}
}

func TestSubscribeStopClosesChannel(t *testing.T) {
	s := advisor.Activate(advisor.NewRouter(llm.NewMockLLM()))
	defer s.Close()

	msgs, stop := s.Subscribe()
	stop()
	stop()

	if _, ok := <-msgs; ok {
		t.Fatalf("expected closed channel after stop")
	}
}

func TestSubscribeAfterCloseIsClosed(t *testing.T) {
	s := advisor.Activate(advisor.NewRouter(llm.NewMockLLM()))
	s.Close()

	msgs, stop := s.Subscribe()
	defer stop()
	if _, ok := <-msgs; ok {
		t.Fatalf("expected closed channel for a closed session")
	}
}
