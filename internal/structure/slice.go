package structure

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/karvela/crampack/internal/codec"
	"github.com/karvela/crampack/internal/cramio"
)

// EmbeddedRefAbsent marks a slice that carries no embedded reference block.
const EmbeddedRefAbsent int32 = -1

// Slice is a bounded batch of records sharing one reference context, framed
// as a header block, one core block and zero or more external blocks.
// Immutable once framed.
type Slice struct {
	Alignment           AlignmentContext
	RecordCount         int32
	GlobalRecordCounter int64
	// BaseCount totals the read bases of this slice's records. In-memory
	// only; the wire total lives in the container header.
	BaseCount int64
	// EmbeddedRefContentID names the external block holding reference
	// bases, or EmbeddedRefAbsent.
	EmbeddedRefContentID int32
	// RefMD5 checksums the reference span this slice aligns to, all zeros
	// when not computed.
	RefMD5 [16]byte
	// Tags holds the optional binary tag payload of version 3 streams.
	Tags []byte

	core     *Block
	external map[int32]*Block

	// byte offset of this slice inside its container, relative to the end
	// of the container header; filled in when the container is framed
	landmark int32
}

// NewSlice builds a slice around its core block.
func NewSlice(alignment AlignmentContext, core *Block) (*Slice, error) {
	if core == nil {
		return nil, fmt.Errorf("slice requires a core block")
	}
	if core.ContentType() != CoreContent {
		return nil, fmt.Errorf("slice core block has content type %s", core.ContentType())
	}
	return &Slice{
		Alignment:            alignment,
		EmbeddedRefContentID: EmbeddedRefAbsent,
		core:                 core,
		external:             make(map[int32]*Block),
	}, nil
}

// AddExternalBlock attaches one external block. A duplicate content id is a
// fatal construction error.
func (s *Slice) AddExternalBlock(b *Block) error {
	if b.ContentType() != ExternalContent {
		return fmt.Errorf("cannot attach a %s block as an external block", b.ContentType())
	}
	if _, exists := s.external[b.ContentID()]; exists {
		return fmt.Errorf("duplicate external block content id %d", b.ContentID())
	}
	s.external[b.ContentID()] = b
	return nil
}

// AddEmbeddedReferenceBlock attaches an external block holding the reference
// bases for this slice's span and records its content id in the header.
func (s *Slice) AddEmbeddedReferenceBlock(b *Block) error {
	if s.EmbeddedRefContentID != EmbeddedRefAbsent {
		return fmt.Errorf("slice already has an embedded reference block (content id %d)",
			s.EmbeddedRefContentID)
	}
	if err := s.AddExternalBlock(b); err != nil {
		return err
	}
	s.EmbeddedRefContentID = b.ContentID()
	return nil
}

// CoreBlock returns the slice's core block.
func (s *Slice) CoreBlock() *Block { return s.core }

// ExternalBlock returns the external block with the given content id.
func (s *Slice) ExternalBlock(contentID int32) (*Block, bool) {
	b, ok := s.external[contentID]
	return b, ok
}

// ExternalContentIDs returns the attached content ids in ascending order,
// the order blocks are framed in.
func (s *Slice) ExternalContentIDs() []int32 {
	ids := make([]int32, 0, len(s.external))
	for id := range s.external {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BlockCount counts the core block plus the external blocks. The header
// block is frame overhead, not content.
func (s *Slice) BlockCount() int { return 1 + len(s.external) }

// Landmark returns this slice's byte offset within its container, valid
// once the container has been framed or parsed.
func (s *Slice) Landmark() int32 { return s.landmark }

// CompressBlocks materializes the compressed form of every block that lacks
// one. The chooser picks a compressor per external content id; the core
// block always stays raw.
func (s *Slice) CompressBlocks(cache *codec.Cache, choose func(contentID int32) (codec.Method, int)) error {
	rawComp, err := cache.Get(codec.Raw, codec.NoArg)
	if err != nil {
		return err
	}
	if err := s.core.Compress(rawComp); err != nil {
		return err
	}
	for _, id := range s.ExternalContentIDs() {
		method, arg := choose(id)
		comp, err := cache.Get(method, arg)
		if err != nil {
			return err
		}
		if err := s.external[id].Compress(comp); err != nil {
			return err
		}
	}
	return nil
}

func (s *Slice) headerPayload(major int) []byte {
	var buf bytes.Buffer
	cramio.WriteITF8(&buf, s.Alignment.ReferenceContext.SequenceID())
	cramio.WriteITF8(&buf, s.Alignment.Start)
	cramio.WriteITF8(&buf, s.Alignment.Span)
	cramio.WriteITF8(&buf, s.RecordCount)
	cramio.WriteLTF8(&buf, s.GlobalRecordCounter)
	cramio.WriteITF8(&buf, int32(s.BlockCount()))
	cramio.WriteITF8Array(&buf, s.ExternalContentIDs())
	cramio.WriteITF8(&buf, s.EmbeddedRefContentID)
	buf.Write(s.RefMD5[:])
	if crcTrailers(major) {
		buf.Write(s.Tags)
	}
	return buf.Bytes()
}

// Write frames the slice: header block, core block, external blocks in
// ascending content-id order. All content blocks must be compressed first.
func (s *Slice) Write(major int, w io.Writer) error {
	header, err := NewRawBlock(SliceHeaderContent, NoContentID, s.headerPayload(major))
	if err != nil {
		return err
	}
	if err := header.Compress(rawCodec{}); err != nil {
		return err
	}
	if err := header.Write(major, w); err != nil {
		return err
	}
	if err := s.core.Write(major, w); err != nil {
		return err
	}
	for _, id := range s.ExternalContentIDs() {
		if err := s.external[id].Write(major, w); err != nil {
			return err
		}
	}
	return nil
}

// rawCodec is the identity compressor used for header blocks, which are
// framed uncompressed regardless of the encoding map.
type rawCodec struct{}

func (rawCodec) Method() codec.Method                   { return codec.Raw }
func (rawCodec) Compress(data []byte) ([]byte, error)   { return data, nil }
func (rawCodec) Uncompress(data []byte) ([]byte, error) { return data, nil }

// ReadSlice parses one slice: its header block and the content blocks the
// header declares. Content payloads are left compressed.
func ReadSlice(major int, r io.Reader) (*Slice, error) {
	header, err := ReadBlock(major, r)
	if err != nil {
		return nil, err
	}
	if header.ContentType() != SliceHeaderContent {
		return nil, fmt.Errorf("expected a slice header block, got %s", header.ContentType())
	}
	cache := codec.NewCache()
	if err := header.Uncompress(cache); err != nil {
		return nil, err
	}
	payload, err := header.RawContent()
	if err != nil {
		return nil, err
	}

	s, nBlocks, err := parseSliceHeader(major, payload)
	if err != nil {
		return nil, err
	}

	declared := make(map[int32]bool, len(s.external))
	for id := range s.external {
		declared[id] = true
	}
	s.external = make(map[int32]*Block, len(declared))

	for i := int32(0); i < nBlocks; i++ {
		b, err := ReadBlock(major, r)
		if err != nil {
			return nil, err
		}
		switch b.ContentType() {
		case CoreContent:
			if s.core != nil {
				return nil, fmt.Errorf("slice holds more than one core block")
			}
			s.core = b
		case ExternalContent:
			if !declared[b.ContentID()] {
				return nil, fmt.Errorf("external block content id %d not declared in slice header", b.ContentID())
			}
			if _, exists := s.external[b.ContentID()]; exists {
				return nil, fmt.Errorf("duplicate external block content id %d", b.ContentID())
			}
			s.external[b.ContentID()] = b
		default:
			return nil, fmt.Errorf("unexpected %s block inside a slice", b.ContentType())
		}
	}
	if s.core == nil {
		return nil, fmt.Errorf("slice holds no core block")
	}
	return s, nil
}

func parseSliceHeader(major int, payload []byte) (*Slice, int32, error) {
	r := bytes.NewReader(payload)
	seqID, err := cramio.ReadITF8(r)
	if err != nil {
		return nil, 0, err
	}
	refContext, err := NewReferenceContext(seqID)
	if err != nil {
		return nil, 0, err
	}
	start, err := cramio.ReadITF8(r)
	if err != nil {
		return nil, 0, err
	}
	span, err := cramio.ReadITF8(r)
	if err != nil {
		return nil, 0, err
	}
	nRecords, err := cramio.ReadITF8(r)
	if err != nil {
		return nil, 0, err
	}
	counter, err := cramio.ReadLTF8(r)
	if err != nil {
		return nil, 0, err
	}
	nBlocks, err := cramio.ReadITF8(r)
	if err != nil {
		return nil, 0, err
	}
	contentIDs, err := cramio.ReadITF8Array(r)
	if err != nil {
		return nil, 0, err
	}
	if int(nBlocks) != len(contentIDs)+1 {
		return nil, 0, fmt.Errorf("slice declares %d blocks but %d external content ids",
			nBlocks, len(contentIDs))
	}
	embeddedRef, err := cramio.ReadITF8(r)
	if err != nil {
		return nil, 0, err
	}
	s := &Slice{
		Alignment: AlignmentContext{
			ReferenceContext: refContext,
			Start:            start,
			Span:             span,
		},
		RecordCount:          nRecords,
		GlobalRecordCounter:  counter,
		EmbeddedRefContentID: embeddedRef,
		external:             make(map[int32]*Block, len(contentIDs)),
	}
	if err := cramio.ReadFull(r, s.RefMD5[:]); err != nil {
		return nil, 0, err
	}
	if crcTrailers(major) && r.Len() > 0 {
		s.Tags = make([]byte, r.Len())
		if err := cramio.ReadFull(r, s.Tags); err != nil {
			return nil, 0, err
		}
	}
	for _, id := range contentIDs {
		if _, exists := s.external[id]; exists {
			return nil, 0, fmt.Errorf("duplicate content id %d in slice header", id)
		}
		s.external[id] = nil
	}
	return s, nBlocks - 1, nil
}
