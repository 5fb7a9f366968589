package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"SERVICE_PRINCIPAL", "HTTP_PORT", "LOG_LEVEL",
		"VEXA_API_KEY", "VEXA_API_URL", "VEXA_WS_URL",
		"SYNC_PREFER_PUSH", "SYNC_POLL_INTERVAL", "SYNC_PING_INTERVAL",
		"SYNC_CONNECT_TIMEOUT", "SYNC_RECONNECT_ATTEMPTS", "SYNC_RECONNECT_BASE",
		"KAFKA_ENABLED", "KAFKA_BROKERS", "REDIS_ENABLED", "REDIS_ADDR",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Service.Principal != "svc-meeting-sync" {
		t.Errorf("expected default principal 'svc-meeting-sync', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default port '8080', got %s", cfg.Service.HTTPPort)
	}

	if cfg.Provider.HasAPIKey() {
		t.Error("expected no API key by default")
	}
	if cfg.Provider.BaseURL != "https://api.cloud.vexa.ai" {
		t.Errorf("unexpected default base URL %s", cfg.Provider.BaseURL)
	}
	if cfg.Provider.WSURL != "wss://api.cloud.vexa.ai/ws" {
		t.Errorf("unexpected default ws URL %s", cfg.Provider.WSURL)
	}

	if !cfg.Sync.PreferPush {
		t.Error("expected push preferred by default")
	}
	if cfg.Sync.PollInterval != 3*time.Second {
		t.Errorf("expected default poll interval 3s, got %v", cfg.Sync.PollInterval)
	}
	if cfg.Sync.PingInterval != 25*time.Second {
		t.Errorf("expected default ping interval 25s, got %v", cfg.Sync.PingInterval)
	}
	if cfg.Sync.ConnectTimeout != 10*time.Second {
		t.Errorf("expected default connect timeout 10s, got %v", cfg.Sync.ConnectTimeout)
	}
	if cfg.Sync.ReconnectAttempts != 5 {
		t.Errorf("expected default reconnect attempts 5, got %d", cfg.Sync.ReconnectAttempts)
	}
	if cfg.Sync.ReconnectBase != time.Second {
		t.Errorf("expected default reconnect base 1s, got %v", cfg.Sync.ReconnectBase)
	}

	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Redis.Enabled {
		t.Error("expected Redis disabled by default")
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	vars := map[string]string{
		"SERVICE_PRINCIPAL":       "custom-principal",
		"HTTP_PORT":               "9999",
		"LOG_LEVEL":               "debug",
		"VEXA_API_KEY":            "test-key",
		"VEXA_API_URL":            "http://localhost:8056",
		"VEXA_WS_URL":             "ws://localhost:8056/ws",
		"SYNC_PREFER_PUSH":        "false",
		"SYNC_POLL_INTERVAL":      "5s",
		"SYNC_RECONNECT_ATTEMPTS": "3",
		"KAFKA_ENABLED":           "true",
		"KAFKA_BROKERS":           "k1:9092, k2:9092",
	}
	for k, v := range vars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range vars {
			os.Unsetenv(k)
		}
	}()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Provider.APIKey != "test-key" {
		t.Errorf("expected API key 'test-key', got %s", cfg.Provider.APIKey)
	}
	if cfg.Sync.PreferPush {
		t.Error("expected push not preferred")
	}
	if cfg.Sync.PollInterval != 5*time.Second {
		t.Errorf("expected poll interval 5s, got %v", cfg.Sync.PollInterval)
	}
	if cfg.Sync.ReconnectAttempts != 3 {
		t.Errorf("expected reconnect attempts 3, got %d", cfg.Sync.ReconnectAttempts)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "k1:9092" || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	os.Setenv("SYNC_POLL_INTERVAL", "not-a-duration")
	os.Setenv("SYNC_RECONNECT_ATTEMPTS", "lots")
	os.Setenv("KAFKA_ENABLED", "maybe")
	defer func() {
		os.Unsetenv("SYNC_POLL_INTERVAL")
		os.Unsetenv("SYNC_RECONNECT_ATTEMPTS")
		os.Unsetenv("KAFKA_ENABLED")
	}()

	cfg := Load()

	if cfg.Sync.PollInterval != 3*time.Second {
		t.Errorf("expected fallback poll interval 3s, got %v", cfg.Sync.PollInterval)
	}
	if cfg.Sync.ReconnectAttempts != 5 {
		t.Errorf("expected fallback reconnect attempts 5, got %d", cfg.Sync.ReconnectAttempts)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected fallback Kafka disabled")
	}
}
