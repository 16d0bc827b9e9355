package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

// ReadReadings reads every reading from an exported file of the given size.
func ReadReadings(r io.ReaderAt, size int64) ([]types.Reading, error) {
	rows, err := parquet.Read[ReadingRow](r, size)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	readings := make([]types.Reading, len(rows))
	for i := range rows {
		readings[i] = RowToReading(&rows[i])
	}

	return readings, nil
}

// FileInfo holds information about an exported file.
type FileInfo struct {
	Path     string
	Size     int64
	NumRows  int64
	Channels map[types.Channel]int
}

// GetFileInfo returns information about an exported file.
func GetFileInfo(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	readings, err := ReadReadings(f, stat.Size())
	if err != nil {
		return nil, err
	}

	info := &FileInfo{
		Path:     path,
		Size:     stat.Size(),
		NumRows:  int64(len(readings)),
		Channels: make(map[types.Channel]int),
	}
	for _, r := range readings {
		info.Channels[r.Channel]++
	}

	return info, nil
}
