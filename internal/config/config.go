package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all CallCenter configuration, read from the environment.
type Config struct {
	Mode string `env:"APP_MODE" envDefault:"api"`

	// Server
	Host string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"APP_PORT" envDefault:"8080"`

	// Database
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/callcenter?sslmode=disable"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// Redis
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metrics
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Dev mode enables the X-Tenant-ID header fallback on /api/v1.
	DevMode bool `env:"DEV_MODE" envDefault:"false"`

	// Evolution API (WhatsApp provider)
	WebhookSecret     string `env:"EVOLUTION_WEBHOOK_SECRET"`
	EvolutionAPIURL   string `env:"EVOLUTION_API_URL"`
	EvolutionAPIToken string `env:"EVOLUTION_API_TOKEN"`

	// AI collection
	OpenAIAPIKey         string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL        string        `env:"OPENAI_BASE_URL"`
	OpenAIModel          string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	AIMaxTurns           int           `env:"AI_MAX_TURNS" envDefault:"8"`
	AITimeout            time.Duration `env:"AI_TIMEOUT" envDefault:"30s"`
	AIDefaultTemperature float32       `env:"AI_DEFAULT_TEMPERATURE" envDefault:"0.4"`
	AIDefaultMaxTokens   int           `env:"AI_DEFAULT_MAX_TOKENS" envDefault:"400"`

	// Dispatch to tenant APIs
	DispatchMaxAttempts int             `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"3"`
	DispatchBackoff     []time.Duration `env:"DISPATCH_BACKOFF" envDefault:"60s,300s,900s" envSeparator:","`
	DispatchTimeout     time.Duration   `env:"DISPATCH_TIMEOUT" envDefault:"30s"`

	// Urgency
	UrgencyRulesTTL   time.Duration `env:"URGENCY_RULES_TTL" envDefault:"1h"`
	UrgencyUrgentAt   int           `env:"URGENCY_URGENT_AT" envDefault:"5"`
	UrgencyCriticalAt int           `env:"URGENCY_CRITICAL_AT" envDefault:"8"`

	// Deferred tasks
	TasksInline            bool          `env:"TASKS_INLINE" envDefault:"true"`
	TasksPoolSize          int           `env:"TASKS_POOL_SIZE" envDefault:"16"`
	TasksPollInterval      time.Duration `env:"TASKS_POLL_INTERVAL" envDefault:"1s"`
	TasksLockTTL           time.Duration `env:"TASKS_LOCK_TTL" envDefault:"2m"`
	TasksReconcileSchedule string        `env:"TASKS_RECONCILE_SCHEDULE" envDefault:"@every 5m"`

	// Slack
	SlackBotToken     string `env:"SLACK_BOT_TOKEN"`
	SlackAlertChannel string `env:"SLACK_ALERT_CHANNEL"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) validate() error {
	if c.DispatchMaxAttempts < 1 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be at least 1")
	}
	if len(c.DispatchBackoff) == 0 {
		return fmt.Errorf("DISPATCH_BACKOFF must list at least one delay")
	}
	if c.UrgencyUrgentAt > c.UrgencyCriticalAt {
		return fmt.Errorf("URGENCY_URGENT_AT (%d) must not exceed URGENCY_CRITICAL_AT (%d)", c.UrgencyUrgentAt, c.UrgencyCriticalAt)
	}
	if c.AIMaxTurns < 1 {
		return fmt.Errorf("AI_MAX_TURNS must be at least 1")
	}
	return nil
}
