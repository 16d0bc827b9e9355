// Package config provides configuration defaults for the gridpower
// application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: server.listen, or env GRIDPOWER_LISTEN / PORT
	DefaultListenAddress = ":3000"

	// DefaultMaxBodyBytes limits a single POST /data body. 0 disables the limit.
	// Override via config: server.max_body_bytes
	DefaultMaxBodyBytes = 0

	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	// Bodies are streamed and have no read deadline by default.
	// Override via config: server.read_header_timeout
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultIdleTimeout is the keep-alive idle timeout.
	// Override via config: server.idle_timeout
	DefaultIdleTimeout = 120 * time.Second
)

// =============================================================================
// Ingestion Defaults
// =============================================================================

const (
	// DefaultChunkSize is how many bytes are read from a stream per chunk.
	// Range: 1 - 16 MiB
	// Override via config: ingestion.chunk_size
	DefaultChunkSize = 64 * 1024

	// MaxChunkSize is the largest accepted chunk size.
	MaxChunkSize = 16 * 1024 * 1024

	// DefaultCarryPartialLines keeps chunk-local row splitting: a row split
	// across two chunks is parsed as two separate rows.
	// Override via config: ingestion.carry_partial_lines
	DefaultCarryPartialLines = false
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultQueryTimeout bounds a single query. 0 disables the timeout.
	// Override via config: query.timeout
	DefaultQueryTimeout = 30 * time.Second

	// DefaultExportCompression is the Parquet codec for GET /data/export.
	// One of: zstd, snappy, gzip, none
	// Override via config: query.export_compression
	DefaultExportCompression = "zstd"
)

// =============================================================================
// Aggregation Defaults
// =============================================================================

const (
	// DefaultPercentileEnabled enables DDSketch percentiles in daily summaries.
	// Override via config: aggregation.percentile.enabled
	DefaultPercentileEnabled = true

	// DefaultPercentileAccuracy is the relative accuracy (0.01 = 1% error).
	// Override via config: aggregation.percentile.accuracy
	DefaultPercentileAccuracy = 0.01
)

// =============================================================================
// Quarantine Defaults
// =============================================================================

const (
	// DefaultQuarantineCapacity is how many rejected rows are kept for
	// GET /rejects. The oldest rejection is overwritten when full.
	// Override via config: quarantine.capacity
	DefaultQuarantineCapacity = 1000

	// DefaultQuarantineMaxAge evicts older rejections. 0 keeps them until
	// overwritten.
	// Override via config: quarantine.max_age
	DefaultQuarantineMaxAge = 24 * time.Hour

	// DefaultQuarantineSweepInterval is how often expired rejections are evicted.
	DefaultQuarantineSweepInterval = time.Minute
)

// =============================================================================
// Source Defaults
// =============================================================================

const (
	// DefaultMQTTTopic is the subscription topic for the MQTT source.
	// Override via config: mqtt.topic
	DefaultMQTTTopic = "gridpower/readings"

	// DefaultMQTTClientID is the MQTT client identifier.
	// Override via config: mqtt.client_id
	DefaultMQTTClientID = "gridpowerd"

	// DefaultMQTTConnectTimeout bounds the initial broker connection.
	// Override via config: mqtt.connect_timeout
	DefaultMQTTConnectTimeout = 10 * time.Second

	// DefaultKafkaTopic is the topic consumed by the Kafka source.
	// Override via config: kafka.topic
	DefaultKafkaTopic = "gridpower.readings"

	// DefaultKafkaGroupID is the consumer group of the Kafka source.
	// Override via config: kafka.group_id
	DefaultKafkaGroupID = "gridpowerd"
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultDrainTimeout is how long in-flight requests may run during shutdown.
	// This follows the Kubernetes convention (terminationGracePeriodSeconds = 30s).
	// Override via config: server.drain_timeout
	DefaultDrainTimeout = 30 * time.Second
)
