package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"ChatWallet/internal/agent"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/notify"
	"ChatWallet/internal/observability/alerting"
)

type echoResponder struct {
	latency time.Duration
	panics  bool
	empty   bool
}

func (r *echoResponder) HandleMessage(ctx context.Context, msg agent.Message) agent.Reply {
	if r.panics {
		panic("boom")
	}
	if r.latency > 0 {
		select {
		case <-time.After(r.latency):
		case <-ctx.Done():
			return agent.Reply{Text: agent.GenericFailureText}
		}
	}
	if r.empty {
		return agent.Reply{}
	}
	return agent.Reply{Text: "echo:" + msg.Text}
}

type recordingSender struct {
	mu      sync.Mutex
	replies map[string][]string
	err     error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{replies: make(map[string][]string)}
}

func (s *recordingSender) Send(_ context.Context, chatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.replies[chatID] = append(s.replies[chatID], text)
	return nil
}

func (s *recordingSender) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.replies {
		n += len(r)
	}
	return n
}

func (s *recordingSender) of(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.replies[chatID]...)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestProcessorRepliesOncePerUpdate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queue := NewMemoryQueue(256)
	sender := newRecordingSender()
	processor := NewProcessor(&echoResponder{latency: 5 * time.Millisecond}, sender, queue,
		WithWorkerCount(8), WithProcessorLogger(quiet))

	errCh := make(chan error, 1)
	go func() { errCh <- processor.Start(ctx) }()

	const total = 100
	for i := 0; i < total; i++ {
		update := Update{UpdateID: int64(i), ChatID: fmt.Sprintf("chat-%d", i%10), Text: fmt.Sprintf("m%d", i)}
		if err := queue.Publish(ctx, update); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for sender.total() < total {
		select {
		case <-deadline:
			t.Fatalf("only %d of %d replies sent", sender.total(), total)
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("processor exited with %v", err)
	}
	if got := len(sender.of("chat-3")); got != total/10 {
		t.Fatalf("chat-3 got %d replies", got)
	}
}

func TestProcessorRateLimitsPerChat(t *testing.T) {
	sender := newRecordingSender()
	processor := NewProcessor(&echoResponder{}, sender, NewMemoryQueue(1),
		WithRateLimit(0.001, 2), WithProcessorLogger(quiet))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := processor.Handle(ctx, Update{ChatID: "a", Text: "hi"}); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if err := processor.Handle(ctx, Update{ChatID: "b", Text: "hi"}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	replies := sender.of("a")
	if len(replies) != 3 || replies[0] != "echo:hi" || replies[2] != SlowDownText {
		t.Fatalf("unexpected replies for a: %v", replies)
	}
	if got := sender.of("b"); len(got) != 1 || got[0] != "echo:hi" {
		t.Fatalf("other chats must not be limited: %v", got)
	}
}

func TestProcessorRecoversPanics(t *testing.T) {
	sender := newRecordingSender()
	alerts := &recordingDispatcher{}
	processor := NewProcessor(&echoResponder{panics: true}, sender, NewMemoryQueue(1),
		WithAlertDispatcher(alerts), WithProcessorLogger(quiet))

	if err := processor.Handle(context.Background(), Update{ChatID: "a", UpdateID: 7}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := sender.of("a"); len(got) != 1 || got[0] != agent.GenericFailureText {
		t.Fatalf("replies = %v", got)
	}
	if len(alerts.events) != 1 || alerts.events[0].Stage != "panic" || alerts.events[0].Metadata["update_id"] != "7" {
		t.Fatalf("alerts = %+v", alerts.events)
	}
}

func TestProcessorEmptyReplyFallsBack(t *testing.T) {
	sender := newRecordingSender()
	processor := NewProcessor(&echoResponder{empty: true}, sender, NewMemoryQueue(1), WithProcessorLogger(quiet))
	if err := processor.Handle(context.Background(), Update{ChatID: "a"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := sender.of("a"); len(got) != 1 || got[0] != agent.GenericFailureText {
		t.Fatalf("replies = %v", got)
	}
}

func TestProcessorMessageTimeoutStillReplies(t *testing.T) {
	sender := newRecordingSender()
	processor := NewProcessor(&echoResponder{latency: time.Second}, sender, NewMemoryQueue(1),
		WithMessageTimeout(20*time.Millisecond), WithProcessorLogger(quiet))

	started := time.Now()
	if err := processor.Handle(context.Background(), Update{ChatID: "a"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if time.Since(started) > 500*time.Millisecond {
		t.Fatalf("message deadline not applied")
	}
	if got := sender.of("a"); len(got) != 1 || got[0] != agent.GenericFailureText {
		t.Fatalf("replies = %v", got)
	}
}

func TestProcessorSendFailureAlerts(t *testing.T) {
	sender := newRecordingSender()
	sender.err = errors.New("telegram unavailable")
	alerts := &recordingDispatcher{}
	processor := NewProcessor(&echoResponder{}, sender, NewMemoryQueue(1),
		WithAlertDispatcher(alerts), WithProcessorLogger(quiet))

	err := processor.Handle(context.Background(), Update{ChatID: "a", Text: "hi"})
	if err == nil {
		t.Fatalf("expected send error")
	}
	if len(alerts.events) != 1 || alerts.events[0].Code != notify.CodeNotifyFailed {
		t.Fatalf("alerts = %+v", alerts.events)
	}
}

func TestProcessorStartRequiresDependencies(t *testing.T) {
	processor := NewProcessor(nil, nil, nil)
	if err := processor.Start(context.Background()); !xerrors.HasCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("err = %v", err)
	}
}

func TestMemoryQueueRejectsAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatal(err)
	}
	if err := queue.Publish(context.Background(), Update{ChatID: "a"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v", err)
	}
}
