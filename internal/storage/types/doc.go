// Package types defines the core data types used throughout the storage system.
//
// Key types:
//   - Channel: the measurement type a reading belongs to (Voltage, Current)
//   - Reading: a parsed, channel-tagged measurement
//   - StoredReading: a reading inside its channel partition
//   - PowerPoint: the derived per-day average power
//   - DaySummary: per-day, per-channel statistics
package types
