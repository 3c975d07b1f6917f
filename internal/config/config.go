package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the binaries read from the environment. A .env
// file in the working directory is loaded first when present; real
// environment variables win over it.
type Config struct {
	HTTP     HTTPConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Notify   NotifyConfig
}

type HTTPConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type KafkaConfig struct {
	Brokers          []string
	OrderEventsTopic string
	ConsumerGroup    string
}

type NotifyConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTP: HTTPConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			URL:          getEnv("POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Kafka: KafkaConfig{
			Brokers:          getEnvSlice("KAFKA_BROKERS", nil),
			OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order.status_changed"),
			ConsumerGroup:    getEnv("KAFKA_CONSUMER_GROUP", "notification-worker"),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Timeout:    getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
