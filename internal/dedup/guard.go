// Package dedup suppresses repeat alerts for the same logical event within a
// calendar-day window.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vigilhq/checkin-engine/internal/domain"
)

// Keys live past their day bucket; the TTL is only cleanup, the date in the
// key is what scopes the window.
const defaultKeyTTL = 48 * time.Hour

// Guard is the dedup/idempotency port consumed by the orchestrator.
type Guard interface {
	// Reserve atomically records key as sent and reports whether this
	// caller won the reservation. false means a duplicate: suppress.
	Reserve(ctx context.Context, key string) (fresh bool, err error)

	// Release returns a reserved key so a later dispatch can win it again.
	// Used when every attempted channel failed: the day's record must only
	// stand for a dispatch that actually reached a channel.
	Release(ctx context.Context, key string) error
}

// RedisGuard implements Guard with a single SET NX EX round trip, which is
// atomic per key: two near-simultaneous dispatches for the same key (e.g.
// overlapping missed-check-in sweeps) resolve to exactly one winner.
type RedisGuard struct {
	client *goredis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisGuard(client *goredis.Client) (*RedisGuard, error) {
	return newRedisGuard(client, defaultKeyTTL, time.Now)
}

func newRedisGuard(client *goredis.Client, ttl time.Duration, nowFn func() time.Time) (*RedisGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultKeyTTL
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &RedisGuard{client: client, ttl: ttl, now: nowFn}, nil
}

func (g *RedisGuard) Reserve(ctx context.Context, key string) (bool, error) {
	if g == nil || g.client == nil {
		return false, fmt.Errorf("dedup guard is not initialized")
	}

	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return false, fmt.Errorf("dedup key is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	set, err := g.client.SetNX(ctx, "dedup:"+normalized, g.now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve dedup key: %w", err)
	}

	return set, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if g == nil || g.client == nil {
		return fmt.Errorf("dedup guard is not initialized")
	}

	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return fmt.Errorf("dedup key is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := g.client.Del(ctx, "dedup:"+normalized).Err(); err != nil {
		return fmt.Errorf("failed to release dedup key: %w", err)
	}
	return nil
}

// KeyFor derives the dedup key for an event: the explicit key when the
// producer set one, otherwise (type, recipient, day). The day bucket is
// anchored to the triggering member's timezone when the event carries one —
// that timezone defines "today" for the underlying check-in — falling back to
// the given default zone.
func KeyFor(e domain.Event, fallback *time.Location, now time.Time) string {
	if explicit := strings.TrimSpace(e.DedupKey); explicit != "" {
		return explicit
	}

	loc := fallback
	if tz := strings.TrimSpace(e.DataValue("memberTimezone")); tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}
	if loc == nil {
		loc = time.UTC
	}

	day := now.In(loc).Format("2006-01-02")
	return fmt.Sprintf("%s:%s:%s", strings.ToLower(e.Type.String()), e.RecipientID, day)
}
