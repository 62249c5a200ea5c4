package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
)

type fakeFCMSender struct {
	sendFn func(ctx context.Context, message *messaging.Message) (string, error)
}

func (f *fakeFCMSender) Send(ctx context.Context, message *messaging.Message) (string, error) {
	return f.sendFn(ctx, message)
}

type fakeTokenSource struct {
	tokenFn func(ctx context.Context, recipientID string) (string, error)
}

func (f *fakeTokenSource) PushToken(ctx context.Context, recipientID string) (string, error) {
	return f.tokenFn(ctx, recipientID)
}

func TestFCMPushSendSuccess(t *testing.T) {
	t.Parallel()

	var gotMessage *messaging.Message
	sender := &fakeFCMSender{
		sendFn: func(ctx context.Context, message *messaging.Message) (string, error) {
			gotMessage = message
			return "projects/x/messages/1", nil
		},
	}
	tokens := &fakeTokenSource{
		tokenFn: func(ctx context.Context, recipientID string) (string, error) {
			if recipientID != "contact-1" {
				t.Fatalf("recipient id = %q, want contact-1", recipientID)
			}
			return "device-token-1", nil
		},
	}

	p := newFCMPush(sender, tokens)

	err := p.SendPush(context.Background(), "contact-1", "Missed check-in", "Alice is late", map[string]string{"memberName": "Alice"})
	if err != nil {
		t.Fatalf("SendPush() unexpected error: %v", err)
	}

	if gotMessage.Token != "device-token-1" {
		t.Fatalf("token = %q, want device-token-1", gotMessage.Token)
	}
	if gotMessage.Notification.Title != "Missed check-in" {
		t.Fatalf("title = %q, want Missed check-in", gotMessage.Notification.Title)
	}
	if gotMessage.Data["memberName"] != "Alice" {
		t.Fatalf("data not carried through: %v", gotMessage.Data)
	}
	if gotMessage.Android == nil || gotMessage.Android.Priority != "high" {
		t.Fatal("android priority should be high for safety pushes")
	}
}

func TestFCMPushMissingTokenIsPermanentFailure(t *testing.T) {
	t.Parallel()

	sender := &fakeFCMSender{
		sendFn: func(ctx context.Context, message *messaging.Message) (string, error) {
			t.Fatal("send should not be called without a token")
			return "", nil
		},
	}
	tokens := &fakeTokenSource{
		tokenFn: func(ctx context.Context, recipientID string) (string, error) {
			return "", nil
		},
	}

	p := newFCMPush(sender, tokens)

	err := p.SendPush(context.Background(), "contact-1", "t", "b", nil)
	if err == nil {
		t.Fatal("SendPush() expected error for missing token")
	}
	if IsTransient(err) {
		t.Fatal("missing token should not be retried")
	}
}

func TestFCMPushTokenLookupFailure(t *testing.T) {
	t.Parallel()

	p := newFCMPush(&fakeFCMSender{
		sendFn: func(ctx context.Context, message *messaging.Message) (string, error) { return "", nil },
	}, &fakeTokenSource{
		tokenFn: func(ctx context.Context, recipientID string) (string, error) {
			return "", errors.New("store down")
		},
	})

	err := p.SendPush(context.Background(), "contact-1", "t", "b", nil)
	if err == nil {
		t.Fatal("SendPush() expected error when token lookup fails")
	}
}

func TestFCMPushRetriesTransientSendFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	sender := &fakeFCMSender{
		sendFn: func(ctx context.Context, message *messaging.Message) (string, error) {
			calls++
			if calls < 2 {
				return "", context.DeadlineExceeded
			}
			return "ok", nil
		},
	}
	tokens := &fakeTokenSource{
		tokenFn: func(ctx context.Context, recipientID string) (string, error) {
			return "device-token-1", nil
		},
	}

	p := newFCMPush(sender, tokens)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	if err := p.SendPush(context.Background(), "contact-1", "t", "b", nil); err != nil {
		t.Fatalf("SendPush() unexpected error after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("send calls = %d, want 2", calls)
	}
}
