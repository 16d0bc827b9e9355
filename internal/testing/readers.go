package testing

import (
	"errors"
	"io"
	"sync/atomic"
)

// ErrInjected is returned by FailingReader.
var ErrInjected = errors.New("injected read failure")

// ChunkedReader returns its data in fixed-size pieces, one per Read, so tests
// control exactly where chunk boundaries fall.
type ChunkedReader struct {
	data  []byte
	sizes []int
	reads atomic.Int64
}

// NewChunkedReader splits data at the given boundaries. After the listed
// sizes are used up, the remainder is returned in one Read.
func NewChunkedReader(data string, sizes ...int) *ChunkedReader {
	return &ChunkedReader{data: []byte(data), sizes: sizes}
}

// SplitAt returns a reader whose chunks end at the given byte offsets.
func SplitAt(data string, offsets ...int) *ChunkedReader {
	sizes := make([]int, 0, len(offsets))
	prev := 0
	for _, off := range offsets {
		sizes = append(sizes, off-prev)
		prev = off
	}
	return NewChunkedReader(data, sizes...)
}

// Read implements io.Reader.
func (r *ChunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}

	n := len(r.data)
	if len(r.sizes) > 0 {
		n = r.sizes[0]
		r.sizes = r.sizes[1:]
		if n > len(r.data) {
			n = len(r.data)
		}
	}
	if n > len(p) {
		n = len(p)
	}

	copy(p, r.data[:n])
	r.data = r.data[n:]
	r.reads.Add(1)
	return n, nil
}

// Reads returns the number of non-EOF reads served.
func (r *ChunkedReader) Reads() int {
	return int(r.reads.Load())
}

// FailingReader serves data and then fails with Err instead of io.EOF.
type FailingReader struct {
	R   io.Reader
	Err error
}

// NewFailingReader returns a reader that fails with ErrInjected after data.
func NewFailingReader(r io.Reader) *FailingReader {
	return &FailingReader{R: r, Err: ErrInjected}
}

// Read implements io.Reader.
func (r *FailingReader) Read(p []byte) (int, error) {
	n, err := r.R.Read(p)
	if errors.Is(err, io.EOF) {
		return n, r.Err
	}
	return n, err
}
