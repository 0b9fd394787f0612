package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz/lzma"

	"github.com/karvela/crampack/internal/rans"
)

// ErrLZMAWriteUnsupported is returned when a caller asks the lzma backend to
// compress. The method is accepted on read for compatibility but is never
// produced on write.
var ErrLZMAWriteUnsupported = errors.New("lzma compression is not supported on write")

// Compressor converts block payloads between their raw and compressed forms.
// Implementations may hold large internal tables and are reused through the
// Cache; individual instances are not safe for concurrent use.
type Compressor interface {
	Method() Method
	Compress(data []byte) ([]byte, error)
	Uncompress(data []byte) ([]byte, error)
}

type rawCompressor struct{}

func (rawCompressor) Method() Method { return Raw }

func (rawCompressor) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (rawCompressor) Uncompress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

type gzipCompressor struct {
	level int
}

func (gzipCompressor) Method() Method { return Gzip }

func (c gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) Uncompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip uncompress: %w", err)
	}
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip reader: %w", err)
	}
	return out, nil
}

type bzip2Compressor struct{}

func (bzip2Compressor) Method() Method { return BZip2 }

func (bzip2Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return nil, fmt.Errorf("creating bzip2 writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("bzip2 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing bzip2 writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (bzip2Compressor) Uncompress(data []byte) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("creating bzip2 reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bzip2 uncompress: %w", err)
	}
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("closing bzip2 reader: %w", err)
	}
	return out, nil
}

type lzmaCompressor struct{}

func (lzmaCompressor) Method() Method { return LZMA }

func (lzmaCompressor) Compress([]byte) ([]byte, error) {
	return nil, ErrLZMAWriteUnsupported
}

func (lzmaCompressor) Uncompress(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating lzma reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lzma uncompress: %w", err)
	}
	return out, nil
}

type ransCompressor struct {
	order rans.Order
	codec *rans.Codec
}

func newRANSCompressor(order rans.Order) *ransCompressor {
	return &ransCompressor{order: order, codec: rans.New()}
}

func (*ransCompressor) Method() Method { return RANS }

func (c *ransCompressor) Compress(data []byte) ([]byte, error) {
	return c.codec.Compress(data, c.order)
}

// Uncompress decodes either order; the order actually used is recorded in
// the stream prefix, not in the block.
func (c *ransCompressor) Uncompress(data []byte) ([]byte, error) {
	return c.codec.Uncompress(data)
}
