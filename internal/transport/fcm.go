package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// fcmSender is the subset of *messaging.Client the push transport uses.
type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPush delivers push notifications through Firebase Cloud Messaging.
// Device tokens are resolved per recipient through a PushTokenSource.
type FCMPush struct {
	client      fcmSender
	tokens      PushTokenSource
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewFCMPush(ctx context.Context, credentialsFile string, tokens PushTokenSource) (*FCMPush, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, fmt.Errorf("firebase credentials file is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("push token source is required")
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fcm client: %w", err)
	}

	return newFCMPush(client, tokens), nil
}

func newFCMPush(client fcmSender, tokens PushTokenSource) *FCMPush {
	return &FCMPush{
		client:      client,
		tokens:      tokens,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		sleep:       sleepWithContext,
	}
}

func (p *FCMPush) SendPush(ctx context.Context, recipientID string, title string, body string, data map[string]string) error {
	if p == nil || p.client == nil {
		return &TransportError{Message: "push transport is not initialized"}
	}
	if strings.TrimSpace(recipientID) == "" {
		return &TransportError{Message: "recipient id is required"}
	}

	token, err := p.tokens.PushToken(ctx, recipientID)
	if err != nil {
		return &TransportError{Message: fmt.Sprintf("failed to resolve push token for %s", recipientID), Cause: err}
	}
	if strings.TrimSpace(token) == "" {
		return &TransportError{Message: fmt.Sprintf("recipient %s has no push token", recipientID)}
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "safety_alerts",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
		},
	}

	return withRetry(ctx, p.maxAttempts, p.baseDelay, p.sleep, func() error {
		if _, sendErr := p.client.Send(ctx, msg); sendErr != nil {
			return classifyFCMError(sendErr)
		}
		return nil
	})
}

func classifyFCMError(err error) error {
	if err == nil {
		return nil
	}

	// Unregistered and invalid-argument failures are permanent: the token
	// is dead and resending the same message cannot succeed.
	if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) ||
		messaging.IsSenderIDMismatch(err) || messaging.IsThirdPartyAuthError(err) {
		return &TransportError{Message: "push rejected", Transient: false, Cause: err}
	}
	if messaging.IsUnavailable(err) || messaging.IsInternal(err) || messaging.IsQuotaExceeded(err) {
		return &TransportError{Message: "push provider unavailable", Transient: true, Cause: err}
	}

	return &TransportError{Message: "push send failed", Transient: IsTransient(err), Cause: err}
}
