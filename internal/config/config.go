package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Stripe   StripeConfig
	Auction  AuctionConfig
	Email    EmailConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	PriceUpdated  string
	AuctionOpened string
	AuctionClosed string
	OrderCreated  string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	JoinFee       float64
	Currency      string
	CallTimeout   time.Duration
}

type AuctionConfig struct {
	// SweepInterval controls how often the open/close sweeps run.
	// The sweeps are idempotent so any interval is safe.
	SweepInterval   time.Duration
	MaxDurationDays int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	From         string
}

type AuthConfig struct {
	JWTSecret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "auction_user"),
			Password:     getEnv("DB_PASSWORD", "auction_pass"),
			Database:     getEnv("DB_NAME", "art_auctions"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				PriceUpdated:  getEnv("KAFKA_TOPIC_PRICE_UPDATED", "artspace.auctions.price-updated"),
				AuctionOpened: getEnv("KAFKA_TOPIC_AUCTION_OPENED", "artspace.auctions.opened"),
				AuctionClosed: getEnv("KAFKA_TOPIC_AUCTION_CLOSED", "artspace.auctions.closed"),
				OrderCreated:  getEnv("KAFKA_TOPIC_ORDER_CREATED", "artspace.orders.created"),
			},
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    getEnv("STRIPE_SUCCESS_URL", "https://artspace.example.com/auctions/payment-success"),
			CancelURL:     getEnv("STRIPE_CANCEL_URL", "https://artspace.example.com/auctions/payment-cancel"),
			JoinFee:       getEnvFloat("STRIPE_JOIN_FEE", 200),
			Currency:      getEnv("STRIPE_CURRENCY", "egp"),
			CallTimeout:   time.Duration(getEnvInt("STRIPE_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Auction: AuctionConfig{
			SweepInterval:   time.Duration(getEnvInt("AUCTION_SWEEP_MINUTES", 15)) * time.Minute,
			MaxDurationDays: getEnvInt("AUCTION_MAX_DURATION_DAYS", 3),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("SMTP_FROM", "no-reply@artspace.example.com"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
