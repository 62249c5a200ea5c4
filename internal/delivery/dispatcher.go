// Package delivery routes classified notification events to the push and
// email channels with per-tier fallback semantics.
package delivery

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vigilhq/checkin-engine/internal/classify"
	"github.com/vigilhq/checkin-engine/internal/dedup"
	"github.com/vigilhq/checkin-engine/internal/domain"
	"github.com/vigilhq/checkin-engine/internal/observability"
	"github.com/vigilhq/checkin-engine/internal/ratelimit"
	"github.com/vigilhq/checkin-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultChannelTimeout    = 8 * time.Second
	defaultFanOutConcurrency = 8
	minFanOutConcurrency     = 1
)

// PreferenceResolver loads a recipient's channel opt-in state.
type PreferenceResolver interface {
	Resolve(ctx context.Context, recipientID string) domain.Preferences
}

// LogSink durably records finalized delivery attempts.
type LogSink interface {
	Append(ctx context.Context, attempt *domain.DeliveryAttempt) error
}

// Dispatcher is the delivery orchestrator. It owns no background loop; it is
// invoked from request handlers and the missed-check-in sweep.
type Dispatcher struct {
	push        transport.PushSender
	email       transport.EmailSender
	preferences PreferenceResolver
	guard       dedup.Guard
	sink        LogSink
	limiter     ratelimit.RateLimiter
	metrics     *observability.Metrics
	logger      *zap.Logger

	channelTimeout time.Duration
	concurrency    int
	defaultZone    *time.Location
	now            func() time.Time
}

// DispatcherConfig carries the dispatcher's collaborators. Push and Email may
// individually be nil when a channel is not configured; at least one must be
// present for dispatch to proceed.
type DispatcherConfig struct {
	Push              transport.PushSender
	Email             transport.EmailSender
	Preferences       PreferenceResolver
	Dedup             dedup.Guard
	Sink              LogSink
	Limiter           ratelimit.RateLimiter
	Metrics           *observability.Metrics
	Logger            *zap.Logger
	ChannelTimeout    time.Duration
	FanOutConcurrency int
	DefaultTimezone   *time.Location
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Preferences == nil {
		return nil, fmt.Errorf("preference resolver is required")
	}
	if cfg.Dedup == nil {
		return nil, fmt.Errorf("dedup guard is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("delivery log sink is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = defaultChannelTimeout
	}
	if cfg.FanOutConcurrency < minFanOutConcurrency {
		cfg.FanOutConcurrency = defaultFanOutConcurrency
	}
	if cfg.DefaultTimezone == nil {
		cfg.DefaultTimezone = time.UTC
	}

	return &Dispatcher{
		push:           cfg.Push,
		email:          cfg.Email,
		preferences:    cfg.Preferences,
		guard:          cfg.Dedup,
		sink:           cfg.Sink,
		limiter:        cfg.Limiter,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		channelTimeout: cfg.ChannelTimeout,
		concurrency:    cfg.FanOutConcurrency,
		defaultZone:    cfg.DefaultTimezone,
		now:            time.Now,
	}, nil
}

// Dispatch runs one event through the full pipeline: classify, dedup check,
// per-tier channel attempts, finalize, log. Channel transport failures never
// escape; the caller always receives a completed attempt describing what
// happened. The only errors returned are malformed input and total channel
// configuration absence.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.Event) (*domain.DeliveryAttempt, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}
	if d.push == nil && d.email == nil {
		return nil, fmt.Errorf("%w: no notification channels configured", domain.ErrConfig)
	}

	tier := classify.TierFor(event.Type)
	if strings.TrimSpace(event.Title) == "" || strings.TrimSpace(event.Body) == "" {
		title, body := classify.Render(event)
		if strings.TrimSpace(event.Title) == "" {
			event.Title = title
		}
		if strings.TrimSpace(event.Body) == "" {
			event.Body = body
		}
	}

	now := d.now()
	attempt := &domain.DeliveryAttempt{
		ID:          uuid.NewString(),
		EventType:   event.Type,
		RecipientID: event.RecipientID,
		Tier:        tier,
		DedupKey:    dedup.KeyFor(event, d.defaultZone, now),
		CreatedAt:   now.UTC(),
	}

	logger := observability.WithContextLogger(d.logger, ctx)

	fresh, err := d.guard.Reserve(ctx, attempt.DedupKey)
	if err != nil {
		// Fail open toward sending: losing dedup is preferable to
		// silently dropping a safety alert.
		logger.Warn("dedup check failed, proceeding with send",
			zap.String("dedupKey", attempt.DedupKey),
			zap.Error(err),
		)
		fresh = true
	}
	if !fresh {
		attempt.Suppressed = true
		d.finalize(ctx, logger, attempt)
		return attempt, nil
	}

	preferences := d.preferences.Resolve(ctx, event.RecipientID)

	switch tier {
	case domain.TierCritical:
		d.dispatchCritical(ctx, event, preferences, attempt)
	case domain.TierHigh:
		d.dispatchHigh(ctx, event, preferences, attempt)
	default:
		d.dispatchEngagement(ctx, event, preferences, attempt)
	}

	d.finalize(ctx, logger, attempt)
	return attempt, nil
}

// DispatchAll fans one triggering condition out to many recipients. One
// recipient's failure never aborts the batch; attempts are collected for all
// events that produced one. Recipient ordering is not preserved.
func (d *Dispatcher) DispatchAll(ctx context.Context, events []domain.Event) []*domain.DeliveryAttempt {
	if len(events) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger := observability.WithContextLogger(d.logger, ctx)

	results := make([]*domain.DeliveryAttempt, len(events))
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)

	for i := range events {
		g.Go(func() error {
			attempt, err := d.Dispatch(ctx, events[i])
			if err != nil {
				logger.Error("fan-out dispatch rejected",
					zap.String("eventType", events[i].Type.String()),
					zap.String("recipientId", events[i].RecipientID),
					zap.Error(err),
				)
				return nil
			}
			results[i] = attempt
			return nil
		})
	}
	_ = g.Wait()

	attempts := make([]*domain.DeliveryAttempt, 0, len(results))
	for _, attempt := range results {
		if attempt != nil {
			attempts = append(attempts, attempt)
		}
	}
	return attempts
}

// dispatchCritical attempts both channels unconditionally: push best-effort,
// email whenever an address is present, regardless of stored preferences.
// Neither outcome gates the other, so the calls run concurrently and total
// latency is bounded by the slower channel rather than their sum.
func (d *Dispatcher) dispatchCritical(ctx context.Context, event domain.Event, preferences domain.Preferences, attempt *domain.DeliveryAttempt) {
	attemptPush := d.push != nil
	attemptEmail := d.email != nil && strings.TrimSpace(event.RecipientEmail) != ""

	if (attemptPush && !preferences.PushEnabled) || (attemptEmail && !preferences.EmailEnabled) {
		attempt.OverrodePreferences = true
	}

	var pushErr, emailErr error
	g := new(errgroup.Group)
	if attemptPush {
		attempt.PushAttempted = true
		g.Go(func() error {
			pushErr = d.sendPush(ctx, event)
			return nil
		})
	}
	if attemptEmail {
		attempt.EmailAttempted = true
		g.Go(func() error {
			emailErr = d.sendEmail(ctx, event)
			return nil
		})
	}
	_ = g.Wait()

	if attemptPush {
		recordPushResult(attempt, pushErr)
	}
	if attemptEmail {
		recordEmailResult(attempt, emailErr)
	}
}

// dispatchHigh attempts push first; email is strictly a fallback, attempted
// only when push did not succeed or was disabled, and only with the
// recipient's consent. A successful push means email is never sent — one
// confirmation is enough for a non-critical event.
func (d *Dispatcher) dispatchHigh(ctx context.Context, event domain.Event, preferences domain.Preferences, attempt *domain.DeliveryAttempt) {
	if d.push != nil && preferences.PushEnabled {
		attempt.PushAttempted = true
		pushErr := d.sendPush(ctx, event)
		recordPushResult(attempt, pushErr)
		if attempt.PushSucceeded {
			return
		}
	}

	if d.email != nil && preferences.EmailEnabled && strings.TrimSpace(event.RecipientEmail) != "" {
		attempt.EmailAttempted = true
		emailErr := d.sendEmail(ctx, event)
		recordEmailResult(attempt, emailErr)
	}
}

// dispatchEngagement handles NORMAL and LOW: push only, gated fully on the
// recipient's preference, no fallback. Disabled push means the event is
// silently not delivered; engagement content never forces a channel the user
// opted out of.
func (d *Dispatcher) dispatchEngagement(ctx context.Context, event domain.Event, preferences domain.Preferences, attempt *domain.DeliveryAttempt) {
	if d.push == nil || !preferences.PushEnabled {
		return
	}

	attempt.PushAttempted = true
	pushErr := d.sendPush(ctx, event)
	recordPushResult(attempt, pushErr)
}

func (d *Dispatcher) sendPush(ctx context.Context, event domain.Event) error {
	d.waitLimiter(ctx, "push")

	sendCtx, cancel := context.WithTimeout(ctx, d.channelTimeout)
	defer cancel()

	start := d.now()
	err := d.push.SendPush(sendCtx, event.RecipientID, event.Title, event.Body, event.Data)
	d.metrics.ObserveChannelSendDuration("push", d.now().Sub(start))

	if err != nil {
		d.metrics.IncChannelAttempt("push", "failure")
		return err
	}
	d.metrics.IncChannelAttempt("push", "success")
	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, event domain.Event) error {
	d.waitLimiter(ctx, "email")

	sendCtx, cancel := context.WithTimeout(ctx, d.channelTimeout)
	defer cancel()

	htmlBody, textBody := emailBodies(event)

	start := d.now()
	err := d.email.SendEmail(sendCtx, event.RecipientEmail, event.Title, htmlBody, textBody, emailCategory(event.Type))
	d.metrics.ObserveChannelSendDuration("email", d.now().Sub(start))

	if err != nil {
		d.metrics.IncChannelAttempt("email", "failure")
		return err
	}
	d.metrics.IncChannelAttempt("email", "success")
	return nil
}

// waitLimiter applies outbound throughput limiting. A limiter failure is
// logged and ignored: throttling must never block a safety notification.
func (d *Dispatcher) waitLimiter(ctx context.Context, channel string) {
	if d.limiter == nil {
		return
	}
	if err := d.limiter.Wait(ctx, channel); err != nil && ctx.Err() == nil {
		d.logger.Warn("rate limiter wait failed, sending anyway",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

// finalize stamps the terminal state, records metrics, and appends to the
// delivery log. Log-write failure is secondary to delivery: a notification
// that reached a channel stays delivered even if the audit write fails.
func (d *Dispatcher) finalize(ctx context.Context, logger *zap.Logger, attempt *domain.DeliveryAttempt) {
	attempt.CompletedAt = d.now().UTC()

	switch {
	case attempt.Suppressed:
		d.metrics.IncDispatch(attempt.Tier.String(), "suppressed")
		d.metrics.IncDedupSuppressed(attempt.EventType.String())
	case attempt.Delivered():
		d.metrics.IncDispatch(attempt.Tier.String(), "delivered")
	default:
		d.metrics.IncDispatch(attempt.Tier.String(), "failed")
	}
	if attempt.OverrodePreferences {
		d.metrics.IncPreferenceOverride(attempt.EventType.String())
	}

	// A reservation only stands for a dispatch that reached a channel. When
	// every attempted channel failed, return the key so the next trigger
	// (the minute-interval sweep being the natural retry) is not suppressed.
	attempted := attempt.PushAttempted || attempt.EmailAttempted
	if !attempt.Suppressed && attempted && !attempt.Delivered() {
		if err := d.guard.Release(context.WithoutCancel(ctx), attempt.DedupKey); err != nil {
			logger.Warn("failed to release dedup key after failed dispatch",
				zap.String("dedupKey", attempt.DedupKey),
				zap.Error(err),
			)
		}
	}

	if err := d.sink.Append(context.WithoutCancel(ctx), attempt); err != nil {
		logger.Error("failed to append delivery attempt to log sink",
			zap.String("attemptId", attempt.ID),
			zap.String("eventType", attempt.EventType.String()),
			zap.Error(err),
		)
	}

	logger.Info("dispatch finalized",
		zap.String("attemptId", attempt.ID),
		zap.String("eventType", attempt.EventType.String()),
		zap.String("recipientId", attempt.RecipientID),
		zap.String("tier", attempt.Tier.String()),
		zap.Bool("suppressed", attempt.Suppressed),
		zap.Bool("delivered", attempt.Delivered()),
		zap.Bool("overrodePreferences", attempt.OverrodePreferences),
	)
}

func recordPushResult(attempt *domain.DeliveryAttempt, err error) {
	if err == nil {
		attempt.PushSucceeded = true
		return
	}
	message := err.Error()
	attempt.PushError = &message
}

func recordEmailResult(attempt *domain.DeliveryAttempt, err error) {
	if err == nil {
		attempt.EmailSucceeded = true
		return
	}
	message := err.Error()
	attempt.EmailError = &message
}

// emailBodies builds the HTML and plain-text variants. Body and action URL
// come from producers and are escaped before they land in markup.
func emailBodies(event domain.Event) (htmlBody string, textBody string) {
	textBody = event.Body
	htmlBody = fmt.Sprintf("<p>%s</p>", html.EscapeString(event.Body))
	if strings.TrimSpace(event.ActionURL) != "" {
		htmlBody += fmt.Sprintf(`<p><a href="%s">Open the app</a></p>`, html.EscapeString(event.ActionURL))
		textBody += "\n\n" + event.ActionURL
	}
	return htmlBody, textBody
}

func emailCategory(eventType domain.EventType) string {
	return strings.ToLower(eventType.String())
}
