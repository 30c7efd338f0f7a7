package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/easely.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// Canvas upstream.
	CanvasBaseURL string        `envconfig:"CANVAS_BASE_URL" default:"https://canvas.instructure.com"`
	RateLimitWait time.Duration `envconfig:"RATE_LIMIT_WAIT" default:"5s"` // backoff before the single retry on 429

	// Subscription.
	PremiumDurationDays     int `envconfig:"PREMIUM_DURATION_DAYS" default:"30"`
	FreeManualTasksPerMonth int `envconfig:"FREE_MANUAL_TASKS_PER_MONTH" default:"5"`

	// Sync job.
	SyncStaleness time.Duration `envconfig:"SYNC_STALENESS" default:"6h"`
	SyncUserDelay time.Duration `envconfig:"SYNC_USER_DELAY" default:"2s"`
	SyncBatchSize int           `envconfig:"SYNC_BATCH_SIZE" default:"10"`

	// Reminder job.
	ReminderTolerance time.Duration `envconfig:"REMINDER_TOLERANCE" default:"30m"`

	// Cron expressions for the three background jobs.
	ReminderCron string `envconfig:"REMINDER_CRON" default:"0 * * * *"`
	SyncCron     string `envconfig:"SYNC_CRON" default:"30 */4 * * *"`
	ExpiryCron   string `envconfig:"EXPIRY_CRON" default:"0 0 * * *"`
}

// Load reads a .env file (if present) and environment variables into Config.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// PremiumDuration returns the length of one paid subscription period.
func (c Config) PremiumDuration() time.Duration {
	return time.Duration(c.PremiumDurationDays) * 24 * time.Hour
}
