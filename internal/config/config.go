package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"Lipa"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"lipa"`
	}

	Server struct {
		Timeout        time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		AllowedOrigins []string      `envconfig:"HTTP_ALLOWED_ORIGINS" default:"*"`
	}

	Mpesa Mpesa

	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	}

	Kafka struct {
		Brokers []string `envconfig:"KAFKA_BROKERS"`
		Topic   string   `envconfig:"KAFKA_SETTLEMENT_TOPIC" default:"payments.settled"`
		GroupID string   `envconfig:"KAFKA_SETTLEMENT_GROUP" default:"lipa-settlement"`
	}

	SMTP struct {
		Host     string        `envconfig:"SMTP_HOST"`
		Port     int           `envconfig:"SMTP_PORT" default:"587"`
		Username string        `envconfig:"SMTP_USERNAME"`
		Password string        `envconfig:"SMTP_PASSWORD"`
		From     string        `envconfig:"SMTP_FROM" default:"receipts@lipa.local"`
		Timeout  time.Duration `envconfig:"SMTP_TIMEOUT" default:"15s"`
	}

	Auth struct {
		JWTSecret string `envconfig:"JWT_SECRET"`
		Issuer    string `envconfig:"JWT_ISSUER" default:"lipa"`
	}

	Reconcile struct {
		Interval     time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1m"`
		After        time.Duration `envconfig:"RECONCILE_AFTER" default:"2m"`
		AbandonAfter time.Duration `envconfig:"RECONCILE_ABANDON_AFTER" default:"15m"`
		BatchSize    int           `envconfig:"RECONCILE_BATCH_SIZE" default:"50"`
	}
}

// Mpesa holds the Daraja credentials and endpoints. It is passed to mpesa.NewClient as-is.
type Mpesa struct {
	BaseURL         string        `envconfig:"BASE_URL" default:"https://sandbox.safaricom.co.ke"`
	ConsumerKey     string        `envconfig:"CONSUMER_KEY"`
	ConsumerSecret  string        `envconfig:"CONSUMER_SECRET"`
	ShortCode       string        `envconfig:"SHORTCODE"`
	PassKey         string        `envconfig:"PASSKEY"`
	CallbackBaseURL string        `envconfig:"CALLBACK_URL"`
	TransactionType string        `envconfig:"MPESA_TRANSACTION_TYPE" default:"CustomerPayBillOnline"`
	Timeout         time.Duration `envconfig:"MPESA_TIMEOUT" default:"30s"`
	TokenMargin     time.Duration `envconfig:"MPESA_TOKEN_MARGIN" default:"60s"`
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
