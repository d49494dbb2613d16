package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries the tunables the engine and its collaborators need. Values
// come from the environment; godotenv loads a .env file in main before this
// runs.
type Config struct {
	Port        string
	DatabaseURL string

	GraceMinutes       int
	SweepInterval      time.Duration
	OfferAcceptTimeout time.Duration
	SwapOfferTTL       time.Duration
	ReminderLead       time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret           string
	StripeAPIKey        string
	StripeWebhookSecret string
}

func Load() *Config {
	return &Config{
		Port:        getEnvStr("PORT", "8080"),
		DatabaseURL: getEnvStr("DATABASE_URL", ""),

		GraceMinutes:       getEnvInt("GRACE_MINUTES", 15),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		OfferAcceptTimeout: getEnvDuration("OFFER_ACCEPT_TIMEOUT", 5*time.Minute),
		SwapOfferTTL:       getEnvDuration("SWAP_OFFER_TTL", 30*time.Minute),
		ReminderLead:       getEnvDuration("REMINDER_LEAD", 15*time.Minute),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnvStr("KAFKA_TOPIC", "parkcore.booking-events"),

		JWTSecret:           getEnvStr("JWT_SECRET", ""),
		StripeAPIKey:        getEnvStr("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnvStr("STRIPE_WEBHOOK_SECRET", ""),
	}
}

// GracePeriod is the configured grace window as a duration.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GraceMinutes) * time.Minute
}

func getEnvStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
