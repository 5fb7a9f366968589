// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds all settings for the sync service.
type Configuration struct {
	Service       ServiceConfig
	Provider      ProviderConfig
	Sync          SyncConfig
	Kafka         KafkaConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
}

// ProviderConfig holds the credentials and endpoints for the external
// transcription provider. It is the credential source for both delivery
// paths: the push client and the REST client read the key and base URLs
// from here.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	WSURL   string
}

// HasAPIKey reports whether an access key is configured.
func (p ProviderConfig) HasAPIKey() bool {
	return p.APIKey != ""
}

// SyncConfig holds the tuning knobs for the sync controller and its
// delivery clients.
type SyncConfig struct {
	PreferPush        bool
	PollInterval      time.Duration
	PingInterval      time.Duration
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectBase     time.Duration
}

// KafkaConfig holds event publisher settings.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
}

// RedisConfig holds meeting store settings.
type RedisConfig struct {
	Enabled bool
	Addr    string
	DB      int
}

// ObservabilityConfig holds metrics/health server settings.
type ObservabilityConfig struct {
	LogLevel string
	Addr     string
}

// Load reads configuration from environment variables, applying defaults
// for anything unset.
func Load() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal: envOrDefault("SERVICE_PRINCIPAL", "svc-meeting-sync"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
		},
		Provider: ProviderConfig{
			APIKey:  os.Getenv("VEXA_API_KEY"),
			BaseURL: envOrDefault("VEXA_API_URL", "https://api.cloud.vexa.ai"),
			WSURL:   envOrDefault("VEXA_WS_URL", "wss://api.cloud.vexa.ai/ws"),
		},
		Sync: SyncConfig{
			PreferPush:        envBool("SYNC_PREFER_PUSH", true),
			PollInterval:      envDuration("SYNC_POLL_INTERVAL", 3*time.Second),
			PingInterval:      envDuration("SYNC_PING_INTERVAL", 25*time.Second),
			ConnectTimeout:    envDuration("SYNC_CONNECT_TIMEOUT", 10*time.Second),
			ReconnectAttempts: envInt("SYNC_RECONNECT_ATTEMPTS", 5),
			ReconnectBase:     envDuration("SYNC_RECONNECT_BASE", time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:      envBool("KAFKA_ENABLED", false),
			Brokers:      splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "meeting.transcript.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "meeting.transcript.final"),
			Principal:    envOrDefault("SERVICE_PRINCIPAL", "svc-meeting-sync"),
		},
		Redis: RedisConfig{
			Enabled: envBool("REDIS_ENABLED", false),
			Addr:    envOrDefault("REDIS_ADDR", "localhost:6379"),
			DB:      envInt("REDIS_DB", 0),
		},
		Observability: ObservabilityConfig{
			LogLevel: envOrDefault("LOG_LEVEL", "info"),
			Addr:     envOrDefault("OBSERVABILITY_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
