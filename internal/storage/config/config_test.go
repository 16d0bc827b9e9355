package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gperrors "github.com/xtxerr/gridpower/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Listen != ":3000" {
		t.Errorf("expected listen :3000, got %s", cfg.Server.Listen)
	}
	if cfg.Ingestion.ChunkSize <= 0 {
		t.Error("expected positive chunk_size")
	}
	if cfg.Ingestion.CarryPartialLines {
		t.Error("expected carry_partial_lines disabled by default")
	}
	if !cfg.Aggregation.Percentile.Enabled {
		t.Error("expected percentile enabled by default")
	}
	if cfg.MQTT.Enabled || cfg.Kafka.Enabled {
		t.Error("expected sources disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = "" }, "listen is required"},
		{"zero chunk size", func(c *Config) { c.Ingestion.ChunkSize = 0 }, "chunk_size"},
		{"huge chunk size", func(c *Config) { c.Ingestion.ChunkSize = 1 << 30 }, "chunk_size"},
		{"bad codec", func(c *Config) { c.Query.ExportCompression = "brotli" }, "export_compression"},
		{"bad accuracy", func(c *Config) { c.Aggregation.Percentile.Accuracy = 2 }, "accuracy"},
		{"zero quarantine", func(c *Config) { c.Quarantine.Capacity = 0 }, "capacity"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "broker is required"},
		{"mqtt bad qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "tcp://x:1883"; c.MQTT.QoS = 3 }, "qos"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "brokers are required"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "unknown log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestValidateMarksInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ingestion.ChunkSize = -1

	err := cfg.Validate()
	if !errors.Is(err, gperrors.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid chunk_size") {
		t.Errorf("expected field name in error, got %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Listen = ""
	cfg.Quarantine.Capacity = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "server:") || !strings.Contains(err.Error(), "quarantine:") {
		t.Errorf("expected both sections in error, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("GRIDPOWER_TEST_TOPIC", "site-7/readings")
	t.Setenv(EnvPort, "")
	t.Setenv(EnvListen, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  listen: "127.0.0.1:8080"
  drain_timeout: 5s
ingestion:
  chunk_size: 4096
  carry_partial_lines: true
aggregation:
  percentile:
    enabled: false
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  topic: ${GRIDPOWER_TEST_TOPIC}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Listen != "127.0.0.1:8080" {
		t.Errorf("expected listen 127.0.0.1:8080, got %s", cfg.Server.Listen)
	}
	if cfg.Server.DrainTimeout != 5*time.Second {
		t.Errorf("expected drain_timeout 5s, got %v", cfg.Server.DrainTimeout)
	}
	if cfg.Ingestion.ChunkSize != 4096 || !cfg.Ingestion.CarryPartialLines {
		t.Errorf("unexpected ingestion config: %+v", cfg.Ingestion)
	}
	if cfg.Aggregation.Percentile.Enabled {
		t.Error("expected percentile disabled")
	}
	if cfg.MQTT.Topic != "site-7/readings" {
		t.Errorf("expected expanded topic, got %s", cfg.MQTT.Topic)
	}

	// Unset fields keep their defaults
	if cfg.Quarantine.Capacity != DefaultConfig().Quarantine.Capacity {
		t.Errorf("expected default quarantine capacity, got %d", cfg.Quarantine.Capacity)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("server: [unclosed"), 0644)
	if _, err := Load(bad); err == nil {
		t.Error("expected parse error")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	os.WriteFile(invalid, []byte("ingestion:\n  chunk_size: -1\n"), 0644)
	if _, err := Load(invalid); err == nil || !strings.Contains(err.Error(), "validate config") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvPort, "4000")
	t.Setenv(EnvListen, "")
	t.Setenv(EnvLogLevel, "debug")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Server.Listen != ":4000" {
		t.Errorf("expected :4000, got %s", cfg.Server.Listen)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Logging.Level)
	}

	// GRIDPOWER_LISTEN wins over PORT
	t.Setenv(EnvListen, "0.0.0.0:9000")
	cfg.ApplyEnv()
	if cfg.Server.Listen != "0.0.0.0:9000" {
		t.Errorf("expected 0.0.0.0:9000, got %s", cfg.Server.Listen)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	os.WriteFile(path, []byte("GRIDPOWER_DOTENV_TEST=from-file\n"), 0644)

	t.Setenv("GRIDPOWER_DOTENV_TEST", "")
	os.Unsetenv("GRIDPOWER_DOTENV_TEST")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("GRIDPOWER_DOTENV_TEST"); got != "from-file" {
		t.Errorf("expected from-file, got %q", got)
	}
}
