// Package storage wires the gridpower ingest and query path together.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Transport  │────▶│  Ingestion  │────▶│    Store    │
//	│ HTTP / MQTT │     │  Pipeline   │     │ (in-memory) │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           │                   │
//	                           ▼                   ▼
//	                    ┌─────────────┐     ┌─────────────┐
//	                    │ Quarantine  │     │    Query    │
//	                    │ (rejects)   │     │  Aggregate  │
//	                    └─────────────┘     └─────────────┘
//
// Rows arrive as byte streams split into chunks. Each row is validated on
// its own; accepted readings are written with one bulk upsert per channel
// and chunk, rejected rows land in the quarantine ring buffer. Queries read
// both channels inside an exclusive window and derive daily power from the
// per-day means.
package storage
