// Package parquet implements Parquet export of stored readings.
//
// The package provides:
//   - ReadingWriter, streaming rows to any io.Writer (an HTTP response or a file)
//   - ReadReadings, loading an exported file back
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package parquet
