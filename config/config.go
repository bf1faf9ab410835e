package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env              string
	Port             string
	PublicBaseURL    string // externally reachable base for gateway redirects and callbacks
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	KafkaBrokers       string
	NotificationsTopic string

	ECPayMerchantID string
	ECPayHashKey    string
	ECPayHashIV     string
	ECPayEndpoint   string

	LinePayChannelID     string
	LinePayChannelSecret string
	LinePayEndpoint      string

	StripeSecretKey  string
	StripeWebhookKey string

	ManualCallbackSecret string

	GatewayTimeout  time.Duration // per outbound gateway call
	InitiateTimeout time.Duration // INITIATED -> EXPIRED after this with no provider response
	PollInterval    time.Duration
	PollGracePeriod time.Duration // minimum transaction age before the poller touches it
	PollRetryBudget int           // queries per transaction before operator escalation
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, using system environment variables")
	}

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8090"),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8090"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Taipei"),

		KafkaBrokers:       getEnv("KAFKA_BROKERS", "localhost:9092"),
		NotificationsTopic: getEnv("NOTIFICATIONS_TOPIC", "operator-notifications"),

		ECPayMerchantID: os.Getenv("ECPAY_MERCHANT_ID"),
		ECPayHashKey:    os.Getenv("ECPAY_HASH_KEY"),
		ECPayHashIV:     os.Getenv("ECPAY_HASH_IV"),
		ECPayEndpoint:   getEnv("ECPAY_ENDPOINT", "https://payment-stage.ecpay.com.tw"),

		LinePayChannelID:     os.Getenv("LINEPAY_CHANNEL_ID"),
		LinePayChannelSecret: os.Getenv("LINEPAY_CHANNEL_SECRET"),
		LinePayEndpoint:      getEnv("LINEPAY_ENDPOINT", "https://sandbox-api-pay.line.me"),

		StripeSecretKey:  os.Getenv("STRIPE_API_KEY"),
		StripeWebhookKey: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		ManualCallbackSecret: os.Getenv("MANUAL_CALLBACK_SECRET"),

		GatewayTimeout:  getDurationEnv("GATEWAY_TIMEOUT", 10*time.Second),
		InitiateTimeout: getDurationEnv("INITIATE_TIMEOUT", 30*time.Minute),
		PollInterval:    getDurationEnv("POLL_INTERVAL", time.Minute),
		PollGracePeriod: getDurationEnv("POLL_GRACE_PERIOD", 5*time.Minute),
		PollRetryBudget: getIntEnv("POLL_RETRY_BUDGET", 10),
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" {
		return nil, fmt.Errorf("missing required environment variables")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		log.Printf("Warning: invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		log.Printf("Warning: invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}
