// Package deflate adapts a zlib implementation to the one-shot calls the
// PNG document needs: inflate to an exact size, and deflate a whole buffer.
package deflate

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

const (
	DefaultCompression = zlib.DefaultCompression
	BestSpeed          = zlib.BestSpeed
	BestCompression    = zlib.BestCompression
)

var (
	ErrDecompression = errors.New("deflate: decompression failed")
	ErrCompression   = errors.New("deflate: compression failed")
)

// Inflate decompresses the zlib stream in data. It fails unless the stream
// produces exactly size bytes and ends cleanly with a valid checksum.
func Inflate(data []byte, size int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrDecompression, "failed to read deflated data: %v", err)
	}
	defer r.Close()

	out := make([]byte, size)
	n, err := io.ReadFull(r, out)
	if err != nil {
		return nil, errors.Wrapf(ErrDecompression, "got %d of %d bytes: %v", n, size, err)
	}

	// The stream must end here. Reading on also verifies the adler32 trailer.
	var extra [1]byte
	switch m, err := r.Read(extra[:]); {
	case m > 0:
		return nil, errors.Wrapf(ErrDecompression, "stream holds more than %d bytes", size)
	case err == nil:
		return nil, errors.Wrapf(ErrDecompression, "stream did not end after %d bytes", size)
	case err != io.EOF:
		return nil, errors.Wrapf(ErrDecompression, "%v", err)
	}
	return out, nil
}

// Deflate compresses data into a complete zlib stream at the given level.
func Deflate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, errors.Wrapf(ErrCompression, "%v", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, errors.Wrapf(ErrCompression, "%v", err)
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrapf(ErrCompression, "%v", err)
	}
	return buf.Bytes(), nil
}
