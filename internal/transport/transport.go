// Package transport holds the outbound channel clients. The orchestrator
// depends only on their success/failure contract; provider-specific errors
// surface as TransportError, never as raw SDK errors.
package transport

import "context"

// PushSender is the push channel port.
type PushSender interface {
	SendPush(ctx context.Context, recipientID string, title string, body string, data map[string]string) error
}

// EmailSender is the email channel port.
type EmailSender interface {
	SendEmail(ctx context.Context, address string, subject string, htmlBody string, textBody string, category string) error
}

// PushTokenSource resolves a recipient identity to a device push token.
type PushTokenSource interface {
	PushToken(ctx context.Context, recipientID string) (string, error)
}
