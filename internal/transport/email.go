package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultEmailTimeout = 10 * time.Second

type emailRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html"`
	TextBody string `json:"text"`
	Category string `json:"category,omitempty"`
}

// HTTPEmail sends email through a JSON HTTP email-provider API.
type HTTPEmail struct {
	client      *resty.Client
	endpoint    string
	apiKey      string
	from        string
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewHTTPEmail(endpoint string, apiKey string, from string) (*HTTPEmail, error) {
	client := resty.New()
	client.SetTimeout(defaultEmailTimeout)
	client.SetRetryCount(0)

	return NewHTTPEmailWithClient(endpoint, apiKey, from, client)
}

func NewHTTPEmailWithClient(endpoint string, apiKey string, from string, client *resty.Client) (*HTTPEmail, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("email endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid email endpoint: %w", err)
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultEmailTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPEmail{
		client:      client,
		endpoint:    trimmedEndpoint,
		apiKey:      strings.TrimSpace(apiKey),
		from:        strings.TrimSpace(from),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		sleep:       sleepWithContext,
	}, nil
}

func (e *HTTPEmail) SendEmail(ctx context.Context, address string, subject string, htmlBody string, textBody string, category string) error {
	if e == nil || e.client == nil {
		return &TransportError{Message: "email transport is not initialized"}
	}
	if strings.TrimSpace(address) == "" {
		return &TransportError{Message: "recipient address is required"}
	}

	reqBody := emailRequest{
		From:     e.from,
		To:       strings.TrimSpace(address),
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
		Category: category,
	}

	return withRetry(ctx, e.maxAttempts, e.baseDelay, e.sleep, func() error {
		return e.sendOnce(ctx, reqBody)
	})
}

func (e *HTTPEmail) sendOnce(ctx context.Context, reqBody emailRequest) error {
	req := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody)
	if e.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+e.apiKey)
	}

	response, err := req.Post(e.endpoint)
	if err != nil {
		return &TransportError{
			Message:   "email provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &TransportError{Message: "email provider returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &TransportError{
		StatusCode: statusCode,
		Message:    emailErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func emailErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("email provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
