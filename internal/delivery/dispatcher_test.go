package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vigilhq/checkin-engine/internal/domain"
)

type fakePush struct {
	calls atomic.Int32
	err   error
}

func (f *fakePush) SendPush(ctx context.Context, recipientID string, title string, body string, data map[string]string) error {
	f.calls.Add(1)
	return f.err
}

type fakeEmail struct {
	calls       atomic.Int32
	lastAddress string
	err         error
	mu          sync.Mutex
}

func (f *fakeEmail) SendEmail(ctx context.Context, address string, subject string, htmlBody string, textBody string, category string) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastAddress = address
	f.mu.Unlock()
	return f.err
}

type fakeGuard struct {
	fresh       bool
	err         error
	mu          sync.Mutex
	lastKey     string
	releasedKey string
}

func (f *fakeGuard) Reserve(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	f.lastKey = key
	f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.fresh, nil
}

func (f *fakeGuard) Release(ctx context.Context, key string) error {
	f.mu.Lock()
	f.releasedKey = key
	f.mu.Unlock()
	return nil
}

func (f *fakeGuard) released() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releasedKey
}

// nxGuard reserves with set-if-absent semantics, mirroring the Redis guard.
type nxGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newNXGuard() *nxGuard {
	return &nxGuard{keys: make(map[string]bool)}
}

func (g *nxGuard) Reserve(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

func (g *nxGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

type fakeResolver struct {
	preferences domain.Preferences
}

func (f *fakeResolver) Resolve(ctx context.Context, recipientID string) domain.Preferences {
	return f.preferences
}

type fakeSink struct {
	mu       sync.Mutex
	appended []*domain.DeliveryAttempt
	err      error
}

func (f *fakeSink) Append(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, attempt)
	return f.err
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

type dispatcherFixture struct {
	push     *fakePush
	email    *fakeEmail
	guard    *fakeGuard
	resolver *fakeResolver
	sink     *fakeSink
}

func newDispatcher(t *testing.T, fx *dispatcherFixture) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(DispatcherConfig{
		Push:        fx.push,
		Email:       fx.email,
		Preferences: fx.resolver,
		Dedup:       fx.guard,
		Sink:        fx.sink,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return d
}

func newFixture() *dispatcherFixture {
	return &dispatcherFixture{
		push:     &fakePush{},
		email:    &fakeEmail{},
		guard:    &fakeGuard{fresh: true},
		resolver: &fakeResolver{preferences: domain.DefaultPreferences()},
		sink:     &fakeSink{},
	}
}

func criticalEvent() domain.Event {
	return domain.Event{
		Type:           domain.EventMissedCheckIn,
		RecipientID:    "contact-1",
		RecipientEmail: "contact@example.com",
		Data:           map[string]string{"memberName": "Ada"},
	}
}

func TestDispatchCriticalUsesBothChannels(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !attempt.PushAttempted || !attempt.PushSucceeded {
		t.Fatal("expected push to be attempted and succeed")
	}
	if !attempt.EmailAttempted || !attempt.EmailSucceeded {
		t.Fatal("expected email to be attempted and succeed")
	}
	if attempt.OverrodePreferences {
		t.Fatal("default preferences should not count as overridden")
	}
	if !attempt.Delivered() {
		t.Fatal("expected attempt to be delivered")
	}
	if fx.sink.count() != 1 {
		t.Fatalf("sink appends = %d, want 1", fx.sink.count())
	}
}

func TestDispatchCriticalOverridesOptOuts(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.resolver.preferences = domain.Preferences{PushEnabled: false, EmailEnabled: false}
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !attempt.PushAttempted || !attempt.EmailAttempted {
		t.Fatal("critical events must reach both channels despite opt-outs")
	}
	if !attempt.OverrodePreferences {
		t.Fatal("expected overrodePreferences to be recorded")
	}
}

func TestDispatchCriticalWithoutEmailAddress(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d := newDispatcher(t, fx)

	event := criticalEvent()
	event.RecipientEmail = ""
	attempt, err := d.Dispatch(context.Background(), event)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !attempt.PushAttempted {
		t.Fatal("expected push to be attempted")
	}
	if attempt.EmailAttempted {
		t.Fatal("email must not be attempted without an address")
	}
	if fx.email.calls.Load() != 0 {
		t.Fatalf("email calls = %d, want 0", fx.email.calls.Load())
	}
}

func TestDispatchCriticalSurvivesSingleChannelFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.push.err = errors.New("fcm unavailable")
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if attempt.PushSucceeded {
		t.Fatal("push should have failed")
	}
	if attempt.PushError == nil || !strings.Contains(*attempt.PushError, "fcm unavailable") {
		t.Fatalf("PushError = %v, want fcm unavailable", attempt.PushError)
	}
	if !attempt.EmailSucceeded {
		t.Fatal("email should still succeed independently")
	}
	if !attempt.Delivered() {
		t.Fatal("one successful channel is a delivery")
	}
	if fx.guard.released() != "" {
		t.Fatal("a partially delivered attempt must keep its dedup reservation")
	}
}

func TestDispatchHighPushSuccessSkipsEmail(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), domain.Event{
		Type:           domain.EventLateCheckIn,
		RecipientID:    "contact-1",
		RecipientEmail: "contact@example.com",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !attempt.PushSucceeded {
		t.Fatal("expected push to succeed")
	}
	if attempt.EmailAttempted {
		t.Fatal("email must not be sent when push succeeded")
	}
	if fx.email.calls.Load() != 0 {
		t.Fatalf("email calls = %d, want 0", fx.email.calls.Load())
	}
}

func TestDispatchHighFallsBackToEmailOnPushFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.push.err = errors.New("device unregistered")
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), domain.Event{
		Type:           domain.EventLateCheckIn,
		RecipientID:    "contact-1",
		RecipientEmail: "contact@example.com",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if attempt.PushSucceeded {
		t.Fatal("push should have failed")
	}
	if !attempt.EmailAttempted || !attempt.EmailSucceeded {
		t.Fatal("expected email fallback to run and succeed")
	}
	if !attempt.Delivered() {
		t.Fatal("fallback success is a delivery")
	}
}

func TestDispatchHighPushDisabledGoesStraightToEmail(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.resolver.preferences = domain.Preferences{PushEnabled: false, EmailEnabled: true}
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), domain.Event{
		Type:           domain.EventCheckInConfirmation,
		RecipientID:    "member-1",
		RecipientEmail: "member@example.com",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if attempt.PushAttempted {
		t.Fatal("push must be skipped when disabled for a non-critical event")
	}
	if !attempt.EmailAttempted || !attempt.EmailSucceeded {
		t.Fatal("expected email to be attempted")
	}
}

func TestDispatchHighNoFallbackWhenEmailDisabled(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.push.err = errors.New("push down")
	fx.resolver.preferences = domain.Preferences{PushEnabled: true, EmailEnabled: false}
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), domain.Event{
		Type:           domain.EventLateCheckIn,
		RecipientID:    "contact-1",
		RecipientEmail: "contact@example.com",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if attempt.EmailAttempted {
		t.Fatal("disabled email must not be used as fallback for a non-critical event")
	}
	if attempt.Delivered() {
		t.Fatal("attempt should not be delivered")
	}
	if attempt.OverrodePreferences {
		t.Fatal("non-critical events never override preferences")
	}
}

func TestDispatchNormalNeverUsesEmail(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.push.err = errors.New("push down")
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), domain.Event{
		Type:           domain.EventCheckInReminder,
		RecipientID:    "member-1",
		RecipientEmail: "member@example.com",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !attempt.PushAttempted {
		t.Fatal("expected push to be attempted")
	}
	if attempt.EmailAttempted || fx.email.calls.Load() != 0 {
		t.Fatal("engagement tiers must never fall back to email")
	}
}

func TestDispatchNormalPushDisabledSendsNothing(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.resolver.preferences = domain.Preferences{PushEnabled: false, EmailEnabled: true}
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), domain.Event{
		Type:        domain.EventWeeklySummary,
		RecipientID: "member-1",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if attempt.PushAttempted || attempt.EmailAttempted {
		t.Fatal("expected no channel attempts")
	}
	if attempt.Delivered() {
		t.Fatal("attempt should not be delivered")
	}
	if fx.sink.count() != 1 {
		t.Fatal("even an all-skipped attempt must be logged")
	}
	if fx.guard.released() != "" {
		t.Fatal("a preference-gated skip is final for the day, not a retryable failure")
	}
}

func TestDispatchSuppressedDuplicate(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.guard.fresh = false
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !attempt.Suppressed {
		t.Fatal("expected attempt to be suppressed")
	}
	if attempt.PushAttempted || attempt.EmailAttempted {
		t.Fatal("suppressed attempts must not touch any channel")
	}
	if fx.push.calls.Load() != 0 || fx.email.calls.Load() != 0 {
		t.Fatal("expected zero transport calls")
	}
	if fx.sink.count() != 1 {
		t.Fatal("suppressed attempts are still logged")
	}
	if fx.guard.released() != "" {
		t.Fatal("a suppressed attempt must not release the winner's reservation")
	}
}

func TestDispatchDedupErrorFailsOpen(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.guard.err = errors.New("redis down")
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if attempt.Suppressed {
		t.Fatal("a dedup store failure must not suppress the send")
	}
	if !attempt.PushAttempted {
		t.Fatal("expected the send to proceed")
	}
}

func TestDispatchTotalChannelFailureReleasesDedupKey(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.push.err = errors.New("fcm unavailable")
	fx.email.err = errors.New("email provider unavailable")
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if attempt.Delivered() {
		t.Fatal("attempt should not be delivered")
	}
	if fx.guard.released() != attempt.DedupKey {
		t.Fatalf("released key = %q, want %q", fx.guard.released(), attempt.DedupKey)
	}
	if fx.sink.count() != 1 {
		t.Fatal("the failed attempt must still be logged")
	}
}

func TestDispatchRetryAfterTotalFailureNotSuppressed(t *testing.T) {
	t.Parallel()

	// The sweep re-fires every interval for a still-missing member; after an
	// outage takes down both channels, the next run must be able to win the
	// day's key again instead of going silent.
	push := &fakePush{err: errors.New("fcm unavailable")}
	email := &fakeEmail{err: errors.New("email provider unavailable")}
	sink := &fakeSink{}
	d, err := NewDispatcher(DispatcherConfig{
		Push:        push,
		Email:       email,
		Preferences: &fakeResolver{preferences: domain.DefaultPreferences()},
		Dedup:       newNXGuard(),
		Sink:        sink,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	first, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if first.Suppressed || first.Delivered() {
		t.Fatalf("first attempt: suppressed=%v delivered=%v, want neither", first.Suppressed, first.Delivered())
	}

	push.err = nil
	email.err = nil

	second, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if second.Suppressed {
		t.Fatal("retry after a total channel failure must not be suppressed")
	}
	if !second.Delivered() {
		t.Fatal("expected the retry to deliver once providers recovered")
	}

	// And the successful attempt's reservation now holds.
	third, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !third.Suppressed {
		t.Fatal("a delivered dispatch must suppress the rest of the day")
	}
}

func TestDispatchNoChannelsConfigured(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d, err := NewDispatcher(DispatcherConfig{
		Preferences: fx.resolver,
		Dedup:       fx.guard,
		Sink:        fx.sink,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	_, err = d.Dispatch(context.Background(), criticalEvent())
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("Dispatch() error = %v, want ErrConfig", err)
	}
	if fx.sink.count() != 0 {
		t.Fatal("rejected dispatches must not be logged")
	}
}

func TestDispatchInvalidEvent(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d := newDispatcher(t, fx)

	_, err := d.Dispatch(context.Background(), domain.Event{Type: domain.EventMissedCheckIn})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Dispatch() error = %v, want ErrValidation", err)
	}
}

func TestDispatchUnknownTypeTreatedAsNormal(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), domain.Event{
		Type:           domain.EventType("SOMETHING_NEW"),
		RecipientID:    "member-1",
		RecipientEmail: "member@example.com",
		Title:          "hello",
		Body:           "world",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if attempt.Tier != domain.TierNormal {
		t.Fatalf("tier = %s, want NORMAL", attempt.Tier)
	}
	if attempt.EmailAttempted {
		t.Fatal("unrecognized types must not escalate to email")
	}
}

func TestDispatchLogWriteFailureDoesNotFailDelivery(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.sink.err = errors.New("postgres down")
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !attempt.Delivered() {
		t.Fatal("log sink failure must not undo the delivery outcome")
	}
}

func TestDispatchExplicitDedupKeyIsUsed(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d := newDispatcher(t, fx)

	event := criticalEvent()
	event.DedupKey = "missed:member-9:2026-08-31"
	attempt, err := d.Dispatch(context.Background(), event)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if attempt.DedupKey != event.DedupKey {
		t.Fatalf("DedupKey = %q, want %q", attempt.DedupKey, event.DedupKey)
	}
	fx.guard.mu.Lock()
	defer fx.guard.mu.Unlock()
	if fx.guard.lastKey != event.DedupKey {
		t.Fatalf("reserved key = %q, want %q", fx.guard.lastKey, event.DedupKey)
	}
}

func TestDispatchAllCollectsPartialResults(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d := newDispatcher(t, fx)

	events := []domain.Event{
		{Type: domain.EventMissedCheckIn, RecipientID: "contact-1", RecipientEmail: "a@example.com"},
		{Type: domain.EventMissedCheckIn}, // missing recipient, rejected
		{Type: domain.EventMissedCheckIn, RecipientID: "contact-2", RecipientEmail: "b@example.com"},
	}

	attempts := d.DispatchAll(context.Background(), events)
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	for _, attempt := range attempts {
		if !attempt.Delivered() {
			t.Fatalf("attempt for %s should be delivered", attempt.RecipientID)
		}
	}
}

func TestDispatchAllEmptyInput(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d := newDispatcher(t, fx)

	if attempts := d.DispatchAll(context.Background(), nil); attempts != nil {
		t.Fatalf("attempts = %v, want nil", attempts)
	}
}

func TestDispatchFillsTitleAndBodyFromTemplates(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d := newDispatcher(t, fx)

	attempt, err := d.Dispatch(context.Background(), domain.Event{
		Type:        domain.EventCheckInReminder,
		RecipientID: "member-1",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if attempt.Tier != domain.TierNormal {
		t.Fatalf("tier = %s, want NORMAL", attempt.Tier)
	}
	if fx.push.calls.Load() != 1 {
		t.Fatalf("push calls = %d, want 1", fx.push.calls.Load())
	}
}

func TestDispatchStampsTimestamps(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	d := newDispatcher(t, fx)

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	attempt, err := d.Dispatch(context.Background(), criticalEvent())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !attempt.CreatedAt.Equal(base) {
		t.Fatalf("CreatedAt = %v, want %v", attempt.CreatedAt, base)
	}
	if !attempt.CompletedAt.Equal(base) {
		t.Fatalf("CompletedAt = %v, want %v", attempt.CompletedAt, base)
	}
	if attempt.ID == "" {
		t.Fatal("expected a generated attempt id")
	}
}

func TestEmailBodiesEscapeProducerContent(t *testing.T) {
	t.Parallel()

	htmlBody, textBody := emailBodies(domain.Event{
		Body:      `<script>alert("x")</script>`,
		ActionURL: `https://app.example.com/checkin?a=1&b="2"`,
	})

	if strings.Contains(htmlBody, "<script>") {
		t.Fatalf("htmlBody = %q, body markup must be escaped", htmlBody)
	}
	if !strings.Contains(htmlBody, "&lt;script&gt;") {
		t.Fatalf("htmlBody = %q, want escaped body text", htmlBody)
	}
	if !strings.Contains(htmlBody, `href="https://app.example.com/checkin?a=1&amp;b=&#34;2&#34;"`) {
		t.Fatalf("htmlBody = %q, want escaped href", htmlBody)
	}
	if textBody != "<script>alert(\"x\")</script>\n\nhttps://app.example.com/checkin?a=1&b=\"2\"" {
		t.Fatalf("textBody = %q, plain text must stay unescaped", textBody)
	}
}
