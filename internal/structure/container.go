package structure

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/karvela/crampack/internal/codec"
	"github.com/karvela/crampack/internal/cramio"
)

// ContainerHeader is the top-level frame: the byte size of the container
// body, the aggregate alignment context, record and block counts, and the
// landmark byte offsets of each slice within the body.
type ContainerHeader struct {
	ByteSize            int32
	Alignment           AlignmentContext
	RecordCount         int32
	GlobalRecordCounter int64
	BaseCount           int64
	BlockCount          int32
	Landmarks           []int32
}

// End-of-stream sentinel shapes, one per major version.
const (
	eofBlockSizeV2 int32 = 11
	eofBlockSizeV3 int32 = 15
)

// EOF sentinel containers: serialized empty containers whose sequence id
// spells out 'EOF'.
var (
	eofMarkerV2 = []byte{
		0x0b, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xe0,
		0x45, 0x4f, 0x46, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00,
		0x01, 0x00, 0x06, 0x06, 0x01, 0x00, 0x01, 0x00, 0x01, 0x00,
	}
	eofMarkerV3 = []byte{
		0x0f, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff, 0x0f, 0xe0,
		0x45, 0x4f, 0x46, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x05,
		0xbd, 0xd9, 0x4f, 0x00, 0x01, 0x00, 0x06, 0x06, 0x01, 0x00,
		0x01, 0x00, 0x01, 0x00, 0xee, 0x63, 0x01, 0x4b,
	}
)

// EOFMarker returns the end-of-stream byte string for the given major
// version.
func EOFMarker(major int) []byte {
	if major >= 3 {
		return append([]byte(nil), eofMarkerV3...)
	}
	return append([]byte(nil), eofMarkerV2...)
}

// WriteEOF writes the end-of-stream sentinel container.
func WriteEOF(major int, w io.Writer) error {
	marker := eofMarkerV3
	if major < 3 {
		marker = eofMarkerV2
	}
	_, err := w.Write(marker)
	return err
}

// IsEOF reports whether the header describes the end-of-stream sentinel:
// the version-specific body size, an unmapped context with the magic
// alignment start, one block and no records.
func (h *ContainerHeader) IsEOF() bool {
	shape := h.Alignment.ReferenceContext.IsUnmapped() &&
		h.Alignment.Start == EOFAlignmentStart &&
		h.BlockCount == 1 &&
		h.RecordCount == 0
	return shape && (h.ByteSize == eofBlockSizeV2 || h.ByteSize == eofBlockSizeV3)
}

// Write frames the header; version 3 streams gain a CRC32 trailer.
func (h *ContainerHeader) Write(major int, w io.Writer) error {
	cw := cramio.NewCRCWriter(w)
	if err := cramio.WriteInt32(cw, h.ByteSize); err != nil {
		return err
	}
	if _, err := cramio.WriteITF8(cw, h.Alignment.ReferenceContext.SequenceID()); err != nil {
		return err
	}
	if _, err := cramio.WriteITF8(cw, h.Alignment.Start); err != nil {
		return err
	}
	if _, err := cramio.WriteITF8(cw, h.Alignment.Span); err != nil {
		return err
	}
	if _, err := cramio.WriteITF8(cw, h.RecordCount); err != nil {
		return err
	}
	if _, err := cramio.WriteLTF8(cw, h.GlobalRecordCounter); err != nil {
		return err
	}
	if _, err := cramio.WriteLTF8(cw, h.BaseCount); err != nil {
		return err
	}
	if _, err := cramio.WriteITF8(cw, h.BlockCount); err != nil {
		return err
	}
	if _, err := cramio.WriteITF8Array(cw, h.Landmarks); err != nil {
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

// ReadContainerHeader parses one container header. A clean io.EOF on the
// first byte means the stream ended without an EOF sentinel, which callers
// may treat as truncation; a CRC mismatch on a version 3 stream is a fatal
// format error.
func ReadContainerHeader(major int, r io.Reader) (*ContainerHeader, error) {
	cr := cramio.NewCRCReader(r)
	// a clean EOF on the first field means the stream ended between
	// containers; keep it distinct from mid-header truncation
	var sizeBuf [4]byte
	if _, err := io.ReadFull(cr, sizeBuf[:]); err != nil {
		return nil, err
	}
	byteSize := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	seqID, err := cramio.ReadITF8(cr)
	if err != nil {
		return nil, err
	}
	refContext, err := NewReferenceContext(seqID)
	if err != nil {
		return nil, err
	}
	start, err := cramio.ReadITF8(cr)
	if err != nil {
		return nil, err
	}
	span, err := cramio.ReadITF8(cr)
	if err != nil {
		return nil, err
	}
	nRecords, err := cramio.ReadITF8(cr)
	if err != nil {
		return nil, err
	}
	counter, err := cramio.ReadLTF8(cr)
	if err != nil {
		return nil, err
	}
	baseCount, err := cramio.ReadLTF8(cr)
	if err != nil {
		return nil, err
	}
	blockCount, err := cramio.ReadITF8(cr)
	if err != nil {
		return nil, err
	}
	landmarks, err := cramio.ReadITF8Array(cr)
	if err != nil {
		return nil, err
	}
	h := &ContainerHeader{
		ByteSize: byteSize,
		Alignment: AlignmentContext{
			ReferenceContext: refContext,
			Start:            start,
			Span:             span,
		},
		RecordCount:         nRecords,
		GlobalRecordCounter: counter,
		BaseCount:           baseCount,
		BlockCount:          blockCount,
		Landmarks:           landmarks,
	}
	if crcTrailers(major) {
		computed := cr.Sum32()
		stored, err := cramio.ReadInt32(r)
		if err != nil {
			return nil, err
		}
		// the sentinel is version-agnostic, its checksum predates this layout
		if uint32(stored) != computed && !h.IsEOF() {
			return nil, fmt.Errorf("container header checksum mismatch: stored %08x, computed %08x",
				uint32(stored), computed)
		}
	}
	return h, nil
}

// Container is the top-level unit: one compression header and an ordered
// list of slices that agree on reference-context classification. A
// Container exclusively owns its slices and compression header.
type Container struct {
	Header            *ContainerHeader
	CompressionHeader *CompressionHeader
	Slices            []*Slice
}

// NewContainer builds a container from a non-empty list of slices. All
// slices must resolve to the same reference-context classification; for
// single-reference containers the alignment start and span are the union
// across slices.
func NewContainer(compressionHeader *CompressionHeader, slices []*Slice, globalRecordCounter int64) (*Container, error) {
	if compressionHeader == nil {
		return nil, fmt.Errorf("container requires a compression header")
	}
	if len(slices) == 0 {
		return nil, fmt.Errorf("container requires at least one slice")
	}
	alignment, err := aggregateAlignment(slices)
	if err != nil {
		return nil, err
	}

	var records int32
	var bases int64
	blocks := int32(1) // the compression header block
	for _, s := range slices {
		records += s.RecordCount
		bases += s.BaseCount
		blocks += int32(1 + s.BlockCount()) // slice header block + content blocks
	}

	return &Container{
		Header: &ContainerHeader{
			Alignment:           alignment,
			RecordCount:         records,
			GlobalRecordCounter: globalRecordCounter,
			BaseCount:           bases,
			BlockCount:          blocks,
		},
		CompressionHeader: compressionHeader,
		Slices:            slices,
	}, nil
}

// aggregateAlignment validates that every slice carries the same
// classification and merges single-reference spans.
func aggregateAlignment(slices []*Slice) (AlignmentContext, error) {
	first := slices[0].Alignment.ReferenceContext
	for _, s := range slices[1:] {
		if s.Alignment.ReferenceContext != first {
			return AlignmentContext{}, fmt.Errorf(
				"container slices disagree on reference context: %s vs %s",
				first, s.Alignment.ReferenceContext)
		}
	}
	if !first.IsSingleRef() {
		return AlignmentContext{ReferenceContext: first, Start: NoAlignmentStart}, nil
	}

	start := slices[0].Alignment.Start
	end := slices[0].Alignment.Start + slices[0].Alignment.Span
	for _, s := range slices[1:] {
		if s.Alignment.Start < start {
			start = s.Alignment.Start
		}
		if e := s.Alignment.Start + s.Alignment.Span; e > end {
			end = e
		}
	}
	return AlignmentContext{ReferenceContext: first, Start: start, Span: end - start}, nil
}

// IsEOF reports whether this container is the end-of-stream sentinel.
func (c *Container) IsEOF() bool {
	return c.Header.IsEOF() && len(c.Slices) == 0
}

// Write frames the container. Slice blocks must be compressed already. The
// body is serialized first so every landmark and the total byte size are
// known before the header is written; the container header cannot be
// streamed ahead of its slices.
func (c *Container) Write(major int, w io.Writer) error {
	var body bytes.Buffer

	chBlock, err := NewRawBlock(CompressionHeaderContent, NoContentID, c.CompressionHeader.Bytes())
	if err != nil {
		return err
	}
	if err := chBlock.Compress(rawCodec{}); err != nil {
		return err
	}
	if err := chBlock.Write(major, &body); err != nil {
		return err
	}

	landmarks := make([]int32, len(c.Slices))
	for i, s := range c.Slices {
		landmarks[i] = int32(body.Len())
		s.landmark = landmarks[i]
		if err := s.Write(major, &body); err != nil {
			return err
		}
	}
	c.Header.Landmarks = landmarks
	c.Header.ByteSize = int32(body.Len())

	if err := c.Header.Write(major, w); err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}

// ReadContainer parses one container, including the sentinel. Block
// payloads are left compressed.
func ReadContainer(major int, r io.Reader) (*Container, error) {
	header, err := ReadContainerHeader(major, r)
	if err != nil {
		return nil, err
	}
	if header.ByteSize < 0 {
		return nil, fmt.Errorf("negative container byte size: %d", header.ByteSize)
	}
	body := make([]byte, header.ByteSize)
	if err := cramio.ReadFull(r, body); err != nil {
		return nil, err
	}
	container := &Container{Header: header}
	if header.IsEOF() {
		return container, nil
	}

	br := bytes.NewReader(body)
	chBlock, err := ReadBlock(major, br)
	if err != nil {
		return nil, err
	}
	if chBlock.ContentType() != CompressionHeaderContent {
		return nil, fmt.Errorf("container starts with a %s block, expected a compression header",
			chBlock.ContentType())
	}
	payload, err := compressionHeaderPayload(chBlock)
	if err != nil {
		return nil, err
	}
	if container.CompressionHeader, err = ReadCompressionHeader(payload); err != nil {
		return nil, err
	}

	for br.Len() > 0 {
		s, err := ReadSlice(major, br)
		if err != nil {
			return nil, err
		}
		container.Slices = append(container.Slices, s)
	}
	if err := container.distributeIndexingParameters(); err != nil {
		return nil, err
	}
	return container, nil
}

func compressionHeaderPayload(b *Block) ([]byte, error) {
	if err := b.Uncompress(codec.NewCache()); err != nil {
		return nil, err
	}
	return b.RawContent()
}

// distributeIndexingParameters assigns each slice its landmark from the
// container header. A landmark count that differs from the slice count is a
// fatal format error.
func (c *Container) distributeIndexingParameters() error {
	if len(c.Header.Landmarks) != len(c.Slices) {
		return fmt.Errorf("container header carries %d landmarks for %d slices",
			len(c.Header.Landmarks), len(c.Slices))
	}
	for i, s := range c.Slices {
		s.landmark = c.Header.Landmarks[i]
	}
	return nil
}
