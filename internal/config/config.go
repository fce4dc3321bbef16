package config

import "github.com/kelseyhightower/envconfig"

type Config struct {
	// ----------------------------
	// SMTP
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`

	// Transport selects the outbound provider: "smtp" or "resend".
	Transport    string `envconfig:"TRANSPORT" default:"smtp"`
	ResendAPIKey string `envconfig:"RESEND_API_KEY" default:""`

	// ----------------------------
	// Sending policy
	// ----------------------------
	// AllowedSenders is the fixed allow-list of organizational from-addresses.
	AllowedSenders []string `envconfig:"ALLOWED_SENDERS" default:"noreply@mailgate.org"`
	// BatchSize is the provider's per-message recipient cap.
	BatchSize     int `envconfig:"BATCH_SIZE" default:"50"`
	RetryAttempts int `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryDelaySec int `envconfig:"RETRY_DELAY_SEC" default:"2"`
	// RateLimit paces transport calls, in sends per second.
	RateLimit int `envconfig:"RATE_LIMIT" default:"10"`

	// ----------------------------
	// Service limits
	// ----------------------------
	PerMinuteQuota int     `envconfig:"PER_MINUTE_QUOTA" default:"30"`
	PerHourQuota   int     `envconfig:"PER_HOUR_QUOTA" default:"500"`
	WarnThreshold  float64 `envconfig:"WARN_THRESHOLD" default:"0.8"`
	OperatorEmail  string  `envconfig:"OPERATOR_EMAIL" default:"ops@mailgate.org"`

	// ----------------------------
	// Workers
	// ----------------------------
	WorkerCount int `envconfig:"WORKER_COUNT" default:"3"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
