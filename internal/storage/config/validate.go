package config

import (
	"errors"
	"fmt"

	defaults "github.com/xtxerr/gridpower/config"
	gperrors "github.com/xtxerr/gridpower/internal/errors"
	"github.com/xtxerr/gridpower/internal/logging"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	// Server
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}

	// Ingestion
	if err := c.Ingestion.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ingestion: %w", err))
	}

	// Query
	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}

	// Aggregation
	if err := c.Aggregation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("aggregation: %w", err))
	}

	// Quarantine
	if err := c.Quarantine.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("quarantine: %w", err))
	}

	// Sources
	if err := c.MQTT.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}
	if err := c.Kafka.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("kafka: %w", err))
	}

	// Logging
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("max_body_bytes must not be negative"))
	}
	if c.ReadHeaderTimeout < 0 || c.IdleTimeout < 0 || c.DrainTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the ingestion configuration.
func (c *IngestionConfig) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkSize > defaults.MaxChunkSize {
		return gperrors.NewValidation("chunk_size", fmt.Sprintf("must be between 1 and %d", defaults.MaxChunkSize))
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}

	validCodecs := map[string]bool{
		"zstd":   true,
		"snappy": true,
		"gzip":   true,
		"none":   true,
		"":       true, // Empty defaults to zstd
	}
	if !validCodecs[c.ExportCompression] {
		errs = append(errs, errors.New("export_compression must be one of: zstd, snappy, gzip, none"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the aggregation configuration.
func (c *AggregationConfig) Validate() error {
	if c.Percentile.Enabled {
		if c.Percentile.Accuracy <= 0 || c.Percentile.Accuracy >= 1 {
			return gperrors.NewValidation("percentile.accuracy", "must be between 0 and 1")
		}
	}
	return nil
}

// Validate checks the quarantine configuration.
func (c *QuarantineConfig) Validate() error {
	var errs []error

	if c.Capacity <= 0 {
		errs = append(errs, errors.New("capacity must be positive"))
	}
	if c.MaxAge < 0 {
		errs = append(errs, errors.New("max_age must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the MQTT configuration.
func (c *MQTTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.Broker == "" {
		errs = append(errs, errors.New("broker is required when enabled"))
	}
	if c.Topic == "" {
		errs = append(errs, errors.New("topic is required when enabled"))
	}
	if c.QoS > 2 {
		errs = append(errs, errors.New("qos must be 0, 1 or 2"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the Kafka configuration.
func (c *KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("brokers are required when enabled"))
	}
	if c.Topic == "" {
		errs = append(errs, errors.New("topic is required when enabled"))
	}
	if c.GroupID == "" {
		errs = append(errs, errors.New("group_id is required when enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Format != "text" && c.Format != "json" {
		errs = append(errs, errors.New("format must be text or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
