package structure

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/karvela/crampack/internal/cramio"
)

// Preservation map keys. The set is closed: an unrecognized key on read is a
// fatal format error, this section has no forward-compatibility escape.
const (
	preservationReadNames    = "RN"
	preservationAPDelta      = "AP"
	preservationRefRequired  = "RR"
	preservationSubstitution = "SM"
	preservationTagDict      = "TD"
)

// EncodingMap assigns each active data series an encoding descriptor.
// Series with no entry are never emitted.
type EncodingMap struct {
	entries map[DataSeries]EncodingDescriptor
}

// NewEncodingMap returns an empty map.
func NewEncodingMap() *EncodingMap {
	return &EncodingMap{entries: make(map[DataSeries]EncodingDescriptor)}
}

// Put assigns a descriptor to a series, replacing any previous assignment.
func (m *EncodingMap) Put(ds DataSeries, d EncodingDescriptor) {
	m.entries[ds] = d
}

// Lookup returns the descriptor for a series, if assigned.
func (m *EncodingMap) Lookup(ds DataSeries) (EncodingDescriptor, bool) {
	d, ok := m.entries[ds]
	return d, ok
}

func (m *EncodingMap) Len() int { return len(m.entries) }

// ExternalContentIDs lists the content ids referenced by the map's
// descriptors, ascending and deduplicated.
func (m *EncodingMap) ExternalContentIDs() []int32 {
	seen := make(map[int32]bool)
	var ids []int32
	for _, d := range m.entries {
		if id, ok := d.ExternalContentID(); ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Series returns the assigned series in wire (alphabetical code) order.
func (m *EncodingMap) Series() []DataSeries {
	out := make([]DataSeries, 0, len(m.entries))
	for ds := range m.entries {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CompressionHeader binds one container's worth of slices to their encoding
// scheme: preservation flags, the tag dictionary, the substitution matrix,
// the series encoding map and the per-tag encoding map. Immutable once
// serialized.
type CompressionHeader struct {
	// ReadNamesIncluded preserves original read names verbatim.
	ReadNamesIncluded bool
	// APDelta stores alignment starts as deltas from the previous record.
	APDelta bool
	// ReferenceRequired marks the container as undecodable without the
	// reference sequence.
	ReferenceRequired bool

	SubstitutionMatrix *SubstitutionMatrix
	// TagDictionary holds one entry per distinct tag-id combination, each a
	// concatenation of 3-byte (name, name, type) triplets.
	TagDictionary [][]byte

	EncodingMap  *EncodingMap
	TagEncodings map[int32]EncodingDescriptor
}

// Write serializes the header payload: preservation map, series encoding
// map, tag encoding map, each section independently length-prefixed.
func (h *CompressionHeader) Write(w io.Writer) error {
	_, err := w.Write(h.Bytes())
	return err
}

// Bytes returns the serialized header payload.
func (h *CompressionHeader) Bytes() []byte {
	var buf bytes.Buffer
	h.writePreservation(&buf)
	h.writeEncodings(&buf)
	h.writeTagEncodings(&buf)
	return buf.Bytes()
}

func (h *CompressionHeader) writePreservation(out *bytes.Buffer) {
	var body bytes.Buffer
	cramio.WriteITF8(&body, 5)

	// keys in sorted order so the serialized form is deterministic
	body.WriteString(preservationAPDelta)
	body.WriteByte(boolByte(h.APDelta))
	body.WriteString(preservationReadNames)
	body.WriteByte(boolByte(h.ReadNamesIncluded))
	body.WriteString(preservationRefRequired)
	body.WriteByte(boolByte(h.ReferenceRequired))
	body.WriteString(preservationSubstitution)
	packed := h.SubstitutionMatrix.Bytes()
	body.Write(packed[:])
	body.WriteString(preservationTagDict)
	writeTagDictionary(&body, h.TagDictionary)

	cramio.WriteITF8(out, int32(body.Len()))
	out.Write(body.Bytes())
}

func (h *CompressionHeader) writeEncodings(out *bytes.Buffer) {
	var body bytes.Buffer
	cramio.WriteITF8(&body, int32(h.EncodingMap.Len()))
	for _, ds := range h.EncodingMap.Series() {
		d, _ := h.EncodingMap.Lookup(ds)
		body.WriteString(string(ds))
		writeDescriptor(&body, d)
	}
	cramio.WriteITF8(out, int32(body.Len()))
	out.Write(body.Bytes())
}

func (h *CompressionHeader) writeTagEncodings(out *bytes.Buffer) {
	ids := make([]int32, 0, len(h.TagEncodings))
	for id := range h.TagEncodings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var body bytes.Buffer
	cramio.WriteITF8(&body, int32(len(ids)))
	for _, id := range ids {
		cramio.WriteITF8(&body, id)
		writeDescriptor(&body, h.TagEncodings[id])
	}
	cramio.WriteITF8(out, int32(body.Len()))
	out.Write(body.Bytes())
}

// tag dictionary wire form: ITF8 byte length, then entries separated by a
// zero byte, one trailing zero per entry included.
func writeTagDictionary(out *bytes.Buffer, dict [][]byte) {
	var body bytes.Buffer
	for _, entry := range dict {
		body.Write(entry)
		body.WriteByte(0)
	}
	cramio.WriteITF8(out, int32(body.Len()))
	out.Write(body.Bytes())
}

func readTagDictionary(r *bytes.Reader) ([][]byte, error) {
	size, err := cramio.ReadITF8(r)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("negative tag dictionary size: %d", size)
	}
	raw := make([]byte, size)
	if err := cramio.ReadFull(r, raw); err != nil {
		return nil, err
	}
	var dict [][]byte
	start := 0
	for i, b := range raw {
		if b == 0 {
			dict = append(dict, raw[start:i])
			start = i + 1
		}
	}
	if start != len(raw) {
		return nil, fmt.Errorf("tag dictionary not zero-terminated")
	}
	return dict, nil
}

// ReadCompressionHeader parses a header payload produced by Write.
func ReadCompressionHeader(payload []byte) (*CompressionHeader, error) {
	r := bytes.NewReader(payload)
	h := &CompressionHeader{
		EncodingMap:  NewEncodingMap(),
		TagEncodings: make(map[int32]EncodingDescriptor),
	}
	if err := h.readPreservation(r); err != nil {
		return nil, err
	}
	if err := h.readEncodings(r); err != nil {
		return nil, err
	}
	if err := h.readTagEncodings(r); err != nil {
		return nil, err
	}
	return h, nil
}

func sectionReader(r *bytes.Reader) (*bytes.Reader, error) {
	size, err := cramio.ReadITF8(r)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("negative section size: %d", size)
	}
	body := make([]byte, size)
	if err := cramio.ReadFull(r, body); err != nil {
		return nil, err
	}
	return bytes.NewReader(body), nil
}

func (h *CompressionHeader) readPreservation(r *bytes.Reader) error {
	body, err := sectionReader(r)
	if err != nil {
		return err
	}
	n, err := cramio.ReadITF8(body)
	if err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		var key [2]byte
		if err := cramio.ReadFull(body, key[:]); err != nil {
			return err
		}
		switch string(key[:]) {
		case preservationReadNames:
			if h.ReadNamesIncluded, err = readBool(body); err != nil {
				return err
			}
		case preservationAPDelta:
			if h.APDelta, err = readBool(body); err != nil {
				return err
			}
		case preservationRefRequired:
			if h.ReferenceRequired, err = readBool(body); err != nil {
				return err
			}
		case preservationSubstitution:
			var packed [SubstitutionMatrixSize]byte
			if err := cramio.ReadFull(body, packed[:]); err != nil {
				return err
			}
			if h.SubstitutionMatrix, err = ParseSubstitutionMatrix(packed[:]); err != nil {
				return err
			}
		case preservationTagDict:
			if h.TagDictionary, err = readTagDictionary(body); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown preservation map key %q", string(key[:]))
		}
	}
	return nil
}

func (h *CompressionHeader) readEncodings(r *bytes.Reader) error {
	body, err := sectionReader(r)
	if err != nil {
		return err
	}
	n, err := cramio.ReadITF8(body)
	if err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		var code [2]byte
		if err := cramio.ReadFull(body, code[:]); err != nil {
			return err
		}
		ds, err := DataSeriesFromCode(string(code[:]))
		if err != nil {
			return err
		}
		d, err := readDescriptor(body)
		if err != nil {
			return err
		}
		h.EncodingMap.Put(ds, d)
	}
	return nil
}

func (h *CompressionHeader) readTagEncodings(r *bytes.Reader) error {
	body, err := sectionReader(r)
	if err != nil {
		return err
	}
	n, err := cramio.ReadITF8(body)
	if err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		id, err := cramio.ReadITF8(body)
		if err != nil {
			return err
		}
		d, err := readDescriptor(body)
		if err != nil {
			return err
		}
		h.TagEncodings[id] = d
	}
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, cramio.EOFToUnexpected(err)
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid boolean byte in preservation map: %d", b)
	}
}
