// Package ziputil builds zip archives for streaming to object storage.
//
// Entries are compressed at the highest level klauspost/compress offers,
// either with Deflate (readable by every unzip tool) or with Zstandard
// (method 93, smaller and faster but needs a modern extractor).
package ziputil

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"

	"github.com/fpang/qr-bulk-generator/internal/config"
)

// MethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const MethodZstd uint16 = 93

// ErrClosed is returned by Add after the archive was closed or aborted.
var ErrClosed = errors.New("archive already closed")

// Archive is a zip writer that is safe to append to from several goroutines.
// Appends are serialized; Close must only be called after every append
// returned.
type Archive struct {
	mu      sync.Mutex
	zw      *zip.Writer
	method  uint16
	closed  bool
	entries int
	modTime time.Time
}

// NewArchive returns an Archive writing to w with the given compression.
func NewArchive(w io.Writer, compression config.Compression) *Archive {
	zw := zip.NewWriter(w)
	a := &Archive{zw: zw, modTime: time.Now()}

	switch compression {
	case config.CompressionZstd:
		a.method = MethodZstd
		zw.RegisterCompressor(MethodZstd, func(out io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		})
	default:
		a.method = zip.Deflate
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, flate.BestCompression)
		})
	}
	return a
}

// Add writes one entry named name with the contents of data.
func (a *Archive) Add(name string, data []byte) error {
	return a.AddReader(name, bytes.NewReader(data))
}

// AddReader writes one entry named name, copying r until EOF.
func (a *Archive) AddReader(name string, r io.Reader) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	header := &zip.FileHeader{
		Name:   name,
		Method: a.method,
	}
	header.Modified = a.modTime

	w, err := a.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	a.entries++
	return nil
}

// Entries returns the number of entries written so far.
func (a *Archive) Entries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries
}

// Close writes the central directory. The underlying writer is not closed.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	a.closed = true
	if err := a.zw.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

// Abort marks the archive closed without writing the central directory, so
// later appends fail fast. Used when the surrounding upload is being
// cancelled.
func (a *Archive) Abort() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

// NewReader opens a zip archive produced by Archive, registering the
// Zstandard decompressor so both compression modes can be read back.
func NewReader(r io.ReaderAt, size int64) (*zip.Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	zr.RegisterDecompressor(MethodZstd, func(in io.Reader) io.ReadCloser {
		dec, err := zstd.NewReader(in)
		if err != nil {
			return io.NopCloser(&errReader{err: err})
		}
		return dec.IOReadCloser()
	})
	return zr, nil
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }
