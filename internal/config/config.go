package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig

	// PublicBaseURL is used to build gateway callback urls.
	PublicBaseURL string
	// AdminToken guards the /admin routes. Empty disables them.
	AdminToken string

	OpenProvider OpenProviderConfig
	Cloudflare   CloudflareConfig
	FastForex    FastForexConfig
	BlockBee     BlockBeeConfig
	Generic      GenericGatewayConfig
	Telegram     TelegramConfig
	Email        EmailConfig
	Slack        SlackConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// RateLimitConfig bounds webhook ingress per gateway. It only applies when
// Redis is configured.
type RateLimitConfig struct {
	Enabled      bool
	WebhookRate  float64
	WebhookBurst int
}

// SchedulerConfig tunes the maintenance loop. EnabledJobs lets a replica run
// a subset of jobs; empty runs all of them.
type SchedulerConfig struct {
	Disabled        bool
	IntervalSeconds int
	BatchSize       int
	EnabledJobs     []string
}

type OpenProviderConfig struct {
	BaseURL  string
	Username string
	Password string
	// FallbackContactEmail is used for the registrant contact when the order
	// carries no contact email.
	FallbackContactEmail string
}

type CloudflareConfig struct {
	BaseURL   string
	APIToken  string
	AccountID string
}

type FastForexConfig struct {
	BaseURL string
	APIKey  string
}

type BlockBeeConfig struct {
	APIKey        string
	WebhookSecret string
}

// GenericGatewayConfig signs deliveries to /webhook/generic. An empty secret
// disables signature checks.
type GenericGatewayConfig struct {
	WebhookSecret string
}

type TelegramConfig struct {
	BaseURL  string
	BotToken string
}

type EmailConfig struct {
	BrevoBaseURL string
	BrevoAPIKey  string
	SenderEmail  string
	SenderName   string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "domainpay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPPort:          getenv("PORT", "8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "domainpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", false),
			WebhookRate:  getenvFloat("RATE_LIMIT_WEBHOOK_RATE", 20),
			WebhookBurst: int(getenvInt64("RATE_LIMIT_WEBHOOK_BURST", 40)),
		},
		Scheduler: SchedulerConfig{
			Disabled:        getenvBool("SCHEDULER_DISABLED", false),
			IntervalSeconds: int(getenvInt64("SCHEDULER_INTERVAL_SECONDS", 60)),
			BatchSize:       int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
			EnabledJobs:     splitList(getenv("SCHEDULER_JOBS", "")),
		},
		AdminToken:    strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		OpenProvider: OpenProviderConfig{
			BaseURL:              getenv("OPENPROVIDER_BASE_URL", "https://api.openprovider.eu/v1beta"),
			Username:             strings.TrimSpace(getenv("OPENPROVIDER_USERNAME", "")),
			Password:             getenv("OPENPROVIDER_PASSWORD", ""),
			FallbackContactEmail: strings.TrimSpace(getenv("FALLBACK_CONTACT_EMAIL", "privacy@domainpay.local")),
		},
		Cloudflare: CloudflareConfig{
			BaseURL:   getenv("CLOUDFLARE_BASE_URL", "https://api.cloudflare.com/client/v4"),
			APIToken:  strings.TrimSpace(getenv("CLOUDFLARE_API_TOKEN", "")),
			AccountID: strings.TrimSpace(getenv("CLOUDFLARE_ACCOUNT_ID", "")),
		},
		FastForex: FastForexConfig{
			BaseURL: getenv("FASTFOREX_BASE_URL", "https://api.fastforex.io"),
			APIKey:  strings.TrimSpace(getenv("FASTFOREX_API_KEY", "")),
		},
		BlockBee: BlockBeeConfig{
			APIKey:        strings.TrimSpace(getenv("BLOCKBEE_API_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("BLOCKBEE_WEBHOOK_SECRET", "")),
		},
		Generic: GenericGatewayConfig{
			WebhookSecret: strings.TrimSpace(getenv("GENERIC_WEBHOOK_SECRET", "")),
		},
		Telegram: TelegramConfig{
			BaseURL:  getenv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
			BotToken: strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN", "")),
		},
		Email: EmailConfig{
			BrevoBaseURL: getenv("BREVO_BASE_URL", "https://api.brevo.com/v3"),
			BrevoAPIKey:  strings.TrimSpace(getenv("BREVO_API_KEY", "")),
			SenderEmail:  getenv("EMAIL_SENDER", "noreply@domainpay.local"),
			SenderName:   getenv("EMAIL_SENDER_NAME", "Domainpay"),
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
		},
		Slack: SlackConfig{
			WebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			Channel:    getenv("SLACK_CHANNEL", "#domainpay-ops"),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
