// Package config loads the gridpowerd configuration.
package config

import (
	"fmt"
	"os"
	"time"

	defaults "github.com/xtxerr/gridpower/config"
	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration.
type Config struct {
	// Server configures the HTTP transport.
	Server ServerConfig `yaml:"server"`

	// Ingestion configures the ingest pipeline.
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Query configures the query service.
	Query QueryConfig `yaml:"query"`

	// Aggregation configures daily summaries.
	Aggregation AggregationConfig `yaml:"aggregation"`

	// Quarantine configures the rejected-row buffer.
	Quarantine QuarantineConfig `yaml:"quarantine"`

	// MQTT configures the optional MQTT source.
	MQTT MQTTConfig `yaml:"mqtt"`

	// Kafka configures the optional Kafka source.
	Kafka KafkaConfig `yaml:"kafka"`

	// Logging configures the global logger.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	// Listen is the listen address, e.g. ":3000".
	Listen string `yaml:"listen"`

	// MaxBodyBytes limits a POST /data body. 0 disables the limit.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// ReadHeaderTimeout bounds reading request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// DrainTimeout bounds graceful shutdown.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// AccessLog enables the combined access log on stdout.
	AccessLog bool `yaml:"access_log"`

	// CORS configures cross-origin requests.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig configures cross-origin requests.
type CORSConfig struct {
	// AllowedOrigins lists permitted origins. "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// IngestionConfig configures the ingest pipeline.
type IngestionConfig struct {
	// ChunkSize is the number of bytes read from a stream per chunk.
	ChunkSize int `yaml:"chunk_size"`

	// CarryPartialLines buffers a trailing partial row until the next chunk.
	CarryPartialLines bool `yaml:"carry_partial_lines"`
}

// QueryConfig configures the query service.
type QueryConfig struct {
	// Timeout is the query timeout. 0 disables it.
	Timeout time.Duration `yaml:"timeout"`

	// ExportCompression is the Parquet codec: zstd, snappy, gzip, none.
	ExportCompression string `yaml:"export_compression"`
}

// AggregationConfig configures daily summaries.
type AggregationConfig struct {
	// Percentile configures DDSketch percentile calculation.
	Percentile PercentileConfig `yaml:"percentile"`
}

// PercentileConfig configures DDSketch percentile calculation.
type PercentileConfig struct {
	// Enabled enables percentile calculation.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// QuarantineConfig configures the rejected-row buffer.
type QuarantineConfig struct {
	// Capacity is the number of rejections kept.
	Capacity int `yaml:"capacity"`

	// MaxAge evicts older rejections. 0 disables eviction by age.
	MaxAge time.Duration `yaml:"max_age"`
}

// MQTTConfig configures the MQTT source.
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Broker         string        `yaml:"broker"`
	Topic          string        `yaml:"topic"`
	ClientID       string        `yaml:"client_id"`
	QoS            byte          `yaml:"qos"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// KafkaConfig configures the Kafka source.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Load loads configuration from a YAML file. Environment variables in the
// file are expanded, then environment overrides are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// Parse parses YAML configuration on top of DefaultConfig.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            defaults.DefaultListenAddress,
			MaxBodyBytes:      defaults.DefaultMaxBodyBytes,
			ReadHeaderTimeout: defaults.DefaultReadHeaderTimeout,
			IdleTimeout:       defaults.DefaultIdleTimeout,
			DrainTimeout:      defaults.DefaultDrainTimeout,
			AccessLog:         true,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
			},
		},
		Ingestion: IngestionConfig{
			ChunkSize:         defaults.DefaultChunkSize,
			CarryPartialLines: defaults.DefaultCarryPartialLines,
		},
		Query: QueryConfig{
			Timeout:           defaults.DefaultQueryTimeout,
			ExportCompression: defaults.DefaultExportCompression,
		},
		Aggregation: AggregationConfig{
			Percentile: PercentileConfig{
				Enabled:  defaults.DefaultPercentileEnabled,
				Accuracy: defaults.DefaultPercentileAccuracy,
			},
		},
		Quarantine: QuarantineConfig{
			Capacity: defaults.DefaultQuarantineCapacity,
			MaxAge:   defaults.DefaultQuarantineMaxAge,
		},
		MQTT: MQTTConfig{
			Topic:          defaults.DefaultMQTTTopic,
			ClientID:       defaults.DefaultMQTTClientID,
			ConnectTimeout: defaults.DefaultMQTTConnectTimeout,
		},
		Kafka: KafkaConfig{
			Topic:   defaults.DefaultKafkaTopic,
			GroupID: defaults.DefaultKafkaGroupID,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
