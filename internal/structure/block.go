// Package structure implements the nested framing units of the container
// format: blocks, slices, containers and the compression header that binds
// data series to encodings and compressors.
package structure

import (
	"fmt"
	"io"

	"github.com/karvela/crampack/internal/codec"
	"github.com/karvela/crampack/internal/cramio"
)

// ContentType identifies what a block's payload contains.
type ContentType byte

const (
	FileHeaderContent        ContentType = 0
	CompressionHeaderContent ContentType = 1
	SliceHeaderContent       ContentType = 2
	ExternalContent          ContentType = 4
	CoreContent              ContentType = 5
)

// ContentTypeFromByte maps a wire byte to a ContentType. An unknown value is
// a format error.
func ContentTypeFromByte(b byte) (ContentType, error) {
	switch ct := ContentType(b); ct {
	case FileHeaderContent, CompressionHeaderContent, SliceHeaderContent, ExternalContent, CoreContent:
		return ct, nil
	default:
		return 0, fmt.Errorf("unknown block content type byte: %d", b)
	}
}

func (ct ContentType) String() string {
	switch ct {
	case FileHeaderContent:
		return "file header"
	case CompressionHeaderContent:
		return "compression header"
	case SliceHeaderContent:
		return "slice header"
	case ExternalContent:
		return "external"
	case CoreContent:
		return "core"
	default:
		return fmt.Sprintf("content(%d)", byte(ct))
	}
}

// NoContentID is the content id carried by every non-external block.
const NoContentID int32 = 0

// crcTrailers reports whether the given major format version frames blocks
// and container headers with CRC32 trailers.
func crcTrailers(major int) bool { return major >= 3 }

// Block is the smallest framed unit: a typed payload held in raw form,
// compressed form, or both. Conversions between the two forms are explicit
// and idempotent; accessors never convert behind the caller's back.
type Block struct {
	method      codec.Method
	contentType ContentType
	contentID   int32
	rawSize     int
	raw         []byte
	compressed  []byte
}

// NewRawBlock builds a raw-only block. Only external blocks may carry a
// non-zero content id.
func NewRawBlock(contentType ContentType, contentID int32, raw []byte) (*Block, error) {
	if contentType != ExternalContent && contentID != NoContentID {
		return nil, fmt.Errorf("%s block must not carry content id %d", contentType, contentID)
	}
	return &Block{
		method:      codec.Raw,
		contentType: contentType,
		contentID:   contentID,
		rawSize:     len(raw),
		raw:         raw,
	}, nil
}

// NewCoreBlock builds the raw bit-stream block of a slice.
func NewCoreBlock(raw []byte) *Block {
	b, _ := NewRawBlock(CoreContent, NoContentID, raw)
	return b
}

// NewExternalBlock builds a raw external block for one data-series stream.
func NewExternalBlock(contentID int32, raw []byte) *Block {
	b, _ := NewRawBlock(ExternalContent, contentID, raw)
	return b
}

func (b *Block) Method() codec.Method     { return b.method }
func (b *Block) ContentType() ContentType { return b.contentType }
func (b *Block) ContentID() int32         { return b.contentID }
func (b *Block) RawSize() int             { return b.rawSize }
func (b *Block) HasRaw() bool             { return b.raw != nil }
func (b *Block) HasCompressed() bool      { return b.compressed != nil }

// RawContent returns the raw payload without converting. Call Uncompress
// first for a block read from a stream.
func (b *Block) RawContent() ([]byte, error) {
	if b.raw == nil {
		return nil, fmt.Errorf("%s block holds no raw content", b.contentType)
	}
	return b.raw, nil
}

// CompressedContent returns the compressed payload without converting. Call
// Compress first for a freshly built block.
func (b *Block) CompressedContent() ([]byte, error) {
	if b.compressed == nil {
		return nil, fmt.Errorf("%s block holds no compressed content", b.contentType)
	}
	return b.compressed, nil
}

// Compress materializes the compressed form using the given compressor and
// records its method. Idempotent once the compressed form exists.
func (b *Block) Compress(comp codec.Compressor) error {
	if b.compressed != nil {
		return nil
	}
	if b.raw == nil {
		return fmt.Errorf("%s block holds no raw content to compress", b.contentType)
	}
	compressed, err := comp.Compress(b.raw)
	if err != nil {
		return fmt.Errorf("compressing %s block: %w", b.contentType, err)
	}
	b.method = comp.Method()
	b.compressed = compressed
	return nil
}

// Uncompress materializes the raw form through the cache. Idempotent once
// the raw form exists. A size disagreement with the frame is a format error.
func (b *Block) Uncompress(cache *codec.Cache) error {
	if b.raw != nil {
		return nil
	}
	if b.compressed == nil {
		return fmt.Errorf("%s block holds no compressed content to uncompress", b.contentType)
	}
	comp, err := cache.Get(b.method, codec.NoArg)
	if err != nil {
		return err
	}
	raw, err := comp.Uncompress(b.compressed)
	if err != nil {
		return fmt.Errorf("uncompressing %s block: %w", b.contentType, err)
	}
	if len(raw) != b.rawSize {
		return fmt.Errorf("%s block declares raw size %d but uncompressed to %d bytes",
			b.contentType, b.rawSize, len(raw))
	}
	b.raw = raw
	return nil
}

// Write frames the block. The compressed form must already be materialized;
// version 3 streams gain a CRC32 trailer over the frame and payload.
func (b *Block) Write(major int, w io.Writer) error {
	if b.compressed == nil {
		return fmt.Errorf("writing %s block before compressing it", b.contentType)
	}
	cw := cramio.NewCRCWriter(w)
	if err := cw.WriteByte(byte(b.method)); err != nil {
		return err
	}
	if err := cw.WriteByte(byte(b.contentType)); err != nil {
		return err
	}
	if _, err := cramio.WriteITF8(cw, b.contentID); err != nil {
		return err
	}
	if _, err := cramio.WriteITF8(cw, int32(len(b.compressed))); err != nil {
		return err
	}
	if _, err := cramio.WriteITF8(cw, int32(b.rawSize)); err != nil {
		return err
	}
	if _, err := cw.Write(b.compressed); err != nil {
		return err
	}
	if crcTrailers(major) {
		sum := cw.SumLE()
		if _, err := w.Write(sum[:]); err != nil {
			return err
		}
	}
	return nil
}

// ReadBlock parses one block frame. The payload is left compressed; a CRC
// mismatch on a version 3 stream is a fatal format error.
func ReadBlock(major int, r io.Reader) (*Block, error) {
	cr := cramio.NewCRCReader(r)
	methodByte, err := cr.ReadByte()
	if err != nil {
		return nil, cramio.EOFToUnexpected(err)
	}
	method, err := codec.MethodFromByte(methodByte)
	if err != nil {
		return nil, err
	}
	typeByte, err := cr.ReadByte()
	if err != nil {
		return nil, cramio.EOFToUnexpected(err)
	}
	contentType, err := ContentTypeFromByte(typeByte)
	if err != nil {
		return nil, err
	}
	contentID, err := cramio.ReadITF8(cr)
	if err != nil {
		return nil, err
	}
	if contentType != ExternalContent && contentID != NoContentID {
		return nil, fmt.Errorf("%s block carries content id %d", contentType, contentID)
	}
	compressedSize, err := cramio.ReadITF8(cr)
	if err != nil {
		return nil, err
	}
	rawSize, err := cramio.ReadITF8(cr)
	if err != nil {
		return nil, err
	}
	if compressedSize < 0 || rawSize < 0 {
		return nil, fmt.Errorf("negative block size: compressed %d, raw %d", compressedSize, rawSize)
	}
	compressed := make([]byte, compressedSize)
	if err := cramio.ReadFull(cr, compressed); err != nil {
		return nil, err
	}

	block := &Block{
		method:      method,
		contentType: contentType,
		contentID:   contentID,
		rawSize:     int(rawSize),
		compressed:  compressed,
	}
	if method == codec.Raw {
		block.raw = compressed
	}

	if crcTrailers(major) {
		computed := cr.Sum32()
		stored, err := cramio.ReadInt32(r)
		if err != nil {
			return nil, err
		}
		if uint32(stored) != computed {
			return nil, fmt.Errorf("block checksum mismatch: stored %08x, computed %08x",
				uint32(stored), computed)
		}
	}
	return block, nil
}
