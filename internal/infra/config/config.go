package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервиса.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	// WebhookSecret — секретный токен из пути /webhook/{secret}.
	// Пустое значение переводит эндпоинт в режим ошибки конфигурации.
	WebhookSecret string `envconfig:"WEBHOOK_SECRET_TOKEN"`

	PGDSN     string `envconfig:"PG_DSN"`
	TableName string `envconfig:"TABLE_NAME" default:"webhook_events"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Store struct {
		QueryTimeout time.Duration `envconfig:"STORE_QUERY_TIMEOUT" default:"5s"`
	} `envconfig:""`

	Server struct {
		ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
		WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
		IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
		MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	} `envconfig:""`

	Alerts struct {
		SMTPHost     string        `envconfig:"SMTP_HOST"`
		SMTPPort     int           `envconfig:"SMTP_PORT" default:"587"`
		SMTPUser     string        `envconfig:"SMTP_USER"`
		SMTPPassword string        `envconfig:"SMTP_PASSWORD"`
		EmailFrom    string        `envconfig:"ALERT_EMAIL_FROM"`
		EmailTo      string        `envconfig:"ALERT_EMAIL"`
		TGToken      string        `envconfig:"ALERT_TG_TOKEN"`
		TGChatID     int64         `envconfig:"ALERT_TG_CHAT_ID"`
		Timeout      time.Duration `envconfig:"ALERT_TIMEOUT" default:"10s"`
		ThrottleTTL  time.Duration `envconfig:"ALERT_THROTTLE_TTL" default:"5m"`
	} `envconfig:""`

	Metrics struct {
		Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
		Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// EmailConfigured сообщает, достаточно ли настроек для почтовых оповещений.
func (c AppConfig) EmailConfigured() bool {
	return c.Alerts.SMTPHost != "" && c.Alerts.EmailTo != ""
}

// TelegramConfigured сообщает, достаточно ли настроек для оповещений в Telegram.
func (c AppConfig) TelegramConfigured() bool {
	return c.Alerts.TGToken != "" && c.Alerts.TGChatID != 0
}
