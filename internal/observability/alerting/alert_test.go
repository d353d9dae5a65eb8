package alerting

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	xerrors "ChatWallet/internal/errors"
)

type recordingSender struct {
	chatID string
	text   string
	err    error
}

func (r *recordingSender) Send(_ context.Context, chatID, text string) error {
	r.chatID = chatID
	r.text = text
	return r.err
}

func TestFromErrorCopiesMetadata(t *testing.T) {
	err := xerrors.Wrap(xerrors.CodeStorageFailure, errors.New("dial tcp"), "", xerrors.WithMetadata("op", "save"))
	event := FromError(err, "42", "handle")
	if event.Code != xerrors.CodeStorageFailure || event.Severity != xerrors.SeverityCritical {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Metadata["op"] != "save" || event.SessionID != "42" || event.Stage != "handle" {
		t.Fatalf("unexpected event fields: %+v", event)
	}
}

func TestFanoutCollectsErrors(t *testing.T) {
	var buf bytes.Buffer
	chat := &recordingSender{err: errors.New("telegram down")}
	d := NewFanout(
		&LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))},
		&ChatNotifier{Sender: chat, ChatID: "-100"},
		nil,
	)
	event := Event{Code: "X", Severity: xerrors.SeverityWarning, Message: "boom", OccurredAt: time.Unix(0, 0).UTC()}
	err := d.Notify(context.Background(), event)
	if err == nil || !strings.Contains(err.Error(), "channel telegram") {
		t.Fatalf("expected telegram error, got %v", err)
	}
	if chat.chatID != "-100" || !strings.Contains(chat.text, "[WARNING] X") {
		t.Fatalf("unexpected chat payload %q -> %q", chat.chatID, chat.text)
	}
	if !strings.Contains(buf.String(), "code=X") {
		t.Fatalf("audit log missing event: %s", buf.String())
	}
}

func TestChatNotifierSkipsWithoutChat(t *testing.T) {
	chat := &recordingSender{}
	n := &ChatNotifier{Sender: chat}
	if err := n.Notify(context.Background(), Event{Code: "X"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chat.text != "" {
		t.Fatalf("should not send without chat id")
	}
}

func TestNilDispatcher(t *testing.T) {
	var d *FanoutDispatcher
	if err := d.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil dispatcher returned %v", err)
	}
}
