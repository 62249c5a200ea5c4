package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	// Channel credentials are individually optional; the engine refuses to
	// dispatch only when neither channel is configured.
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
	EmailAPIURL             string `env:"EMAIL_API_URL"`
	EmailAPIKey             string `env:"EMAIL_API_KEY"`
	EmailFrom               string `env:"EMAIL_FROM,default=alerts@vigilhq.com"`

	ChannelTimeoutSec   int    `env:"CHANNEL_TIMEOUT_SEC,default=8"`
	GracePeriodMinutes  int    `env:"GRACE_PERIOD_MINUTES,default=5"`
	SweepIntervalSec    int    `env:"SWEEP_INTERVAL_SEC,default=60"`
	DispatchConcurrency int    `env:"DISPATCH_CONCURRENCY,default=8"`
	RateLimitPerSec     int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	SessionTTLHours     int    `env:"SESSION_TTL_HOURS,default=720"`
	DefaultTimezone     string `env:"DEFAULT_TIMEZONE,default=UTC"`
	APIPort             int    `env:"API_PORT,default=8080"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
