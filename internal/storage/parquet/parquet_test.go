package parquet

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/xtxerr/gridpower/internal/storage/types"
)

func sampleReadings() ([]types.StoredReading, []types.StoredReading) {
	current := []types.StoredReading{
		{Time: 1700000000, Value: 1.5},
		{Time: 1700000060, Value: 1.75},
	}
	voltage := []types.StoredReading{
		{Time: 1700000000, Value: 3.3},
	}
	return current, voltage
}

func TestReadingWriteAndRead(t *testing.T) {
	current, voltage := sampleReadings()

	var buf bytes.Buffer
	w := NewReadingWriter(&buf, Options{Compression: CompressionZstd})

	if err := w.Write(types.ChannelCurrent, current); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(types.ChannelVoltage, voltage); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if w.RowCount() != 3 {
		t.Errorf("expected 3 rows, got %d", w.RowCount())
	}
	if buf.Len() == 0 {
		t.Fatal("expected output")
	}

	readings, err := ReadReadings(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("ReadReadings: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(readings))
	}

	expected := []types.Reading{
		{Time: 1700000000, Value: 1.5, Channel: types.ChannelCurrent},
		{Time: 1700000060, Value: 1.75, Channel: types.ChannelCurrent},
		{Time: 1700000000, Value: 3.3, Channel: types.ChannelVoltage},
	}
	for i, want := range expected {
		if readings[i] != want {
			t.Errorf("index %d: expected %+v, got %+v", i, want, readings[i])
		}
	}
}

func TestReadingWriterCompression(t *testing.T) {
	current, _ := sampleReadings()

	for _, name := range []string{"none", "snappy", "zstd", "lz4", "gzip"} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewReadingWriter(&buf, Options{Compression: ParseCompressionType(name)})
			if err := w.Write(types.ChannelCurrent, current); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			readings, err := ReadReadings(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			if err != nil {
				t.Fatalf("ReadReadings: %v", err)
			}
			if len(readings) != len(current) {
				t.Errorf("expected %d readings, got %d", len(current), len(readings))
			}
		})
	}
}

func TestReadingWriterEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := NewReadingWriter(&buf, Options{Compression: CompressionZstd})

	if err := w.Write(types.ChannelVoltage, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	readings, err := ReadReadings(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("ReadReadings: %v", err)
	}
	if len(readings) != 0 {
		t.Errorf("expected no readings, got %d", len(readings))
	}
}

func TestReadingWriterClosed(t *testing.T) {
	var buf bytes.Buffer
	w := NewReadingWriter(&buf, Options{Compression: CompressionZstd})
	w.Close()

	// Close is idempotent
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	err := w.Write(types.ChannelCurrent, []types.StoredReading{{Time: 1, Value: 1}})
	if err != ErrWriterClosed {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
}

func TestGetFileInfo(t *testing.T) {
	current, voltage := sampleReadings()
	path := filepath.Join(t.TempDir(), "export.parquet")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w := NewReadingWriter(f, Options{Compression: CompressionZstd})
	w.Write(types.ChannelCurrent, current)
	w.Write(types.ChannelVoltage, voltage)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f.Close()

	info, err := GetFileInfo(path)
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	if info.NumRows != 3 {
		t.Errorf("expected 3 rows, got %d", info.NumRows)
	}
	if info.Channels[types.ChannelCurrent] != 2 || info.Channels[types.ChannelVoltage] != 1 {
		t.Errorf("unexpected channel counts: %v", info.Channels)
	}
	if info.Size == 0 {
		t.Error("expected non-empty file")
	}

	if _, err := GetFileInfo(filepath.Join(t.TempDir(), "missing.parquet")); err == nil {
		t.Error("expected error for missing file")
	}

	garbage := filepath.Join(t.TempDir(), "garbage.parquet")
	os.WriteFile(garbage, []byte("not parquet"), 0644)
	if _, err := GetFileInfo(garbage); err == nil {
		t.Error("expected error for invalid file")
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		input    string
		expected CompressionType
	}{
		{"snappy", CompressionSnappy},
		{"zstd", CompressionZstd},
		{"", CompressionZstd},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
		{"bogus", CompressionZstd},
	}

	for _, tt := range tests {
		if got := ParseCompressionType(tt.input); got != tt.expected {
			t.Errorf("input %q: expected %d, got %d", tt.input, tt.expected, got)
		}
	}
}
