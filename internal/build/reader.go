package build

import (
	"bytes"
	"fmt"

	"github.com/karvela/crampack/internal/codec"
	"github.com/karvela/crampack/internal/cramio"
	"github.com/karvela/crampack/internal/record"
	"github.com/karvela/crampack/internal/structure"
)

// seriesReader walks the per-series streams of one slice, the inverse of
// seriesWriter: each external block the encoding map routes a series to is
// uncompressed once and consumed front to back as records are decoded.
type seriesReader struct {
	tagDictSize int
	streams     map[structure.DataSeries]*bytes.Reader
	stops       map[structure.DataSeries]byte
}

func newSeriesReader(cache *codec.Cache, header *structure.CompressionHeader, s *structure.Slice) (*seriesReader, error) {
	if header.SubstitutionMatrix == nil {
		return nil, fmt.Errorf("compression header carries no substitution matrix")
	}
	r := &seriesReader{
		tagDictSize: len(header.TagDictionary),
		streams:     make(map[structure.DataSeries]*bytes.Reader),
		stops:       make(map[structure.DataSeries]byte),
	}
	for _, ds := range header.EncodingMap.Series() {
		d, _ := header.EncodingMap.Lookup(ds)
		id, ok := d.ExternalContentID()
		if !ok {
			return nil, fmt.Errorf("series %s routes to no external block", ds)
		}
		if d.ID == structure.EncodingByteArrayStop {
			r.stops[ds] = d.Params[0]
		}
		b, ok := s.ExternalBlock(id)
		if !ok {
			// the series was never emitted for this slice
			continue
		}
		if err := b.Uncompress(cache); err != nil {
			return nil, err
		}
		raw, err := b.RawContent()
		if err != nil {
			return nil, err
		}
		r.streams[ds] = bytes.NewReader(raw)
	}
	return r, nil
}

func (r *seriesReader) stream(ds structure.DataSeries) (*bytes.Reader, error) {
	s, ok := r.streams[ds]
	if !ok {
		return nil, fmt.Errorf("series %s stream is empty", ds)
	}
	return s, nil
}

func (r *seriesReader) getInt(ds structure.DataSeries) (int32, error) {
	s, err := r.stream(ds)
	if err != nil {
		return 0, err
	}
	v, err := cramio.ReadITF8(s)
	if err != nil {
		return 0, fmt.Errorf("reading series %s: %w", ds, err)
	}
	return v, nil
}

func (r *seriesReader) getByte(ds structure.DataSeries) (byte, error) {
	s, err := r.stream(ds)
	if err != nil {
		return 0, err
	}
	b, err := s.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("reading series %s: %w", ds, cramio.EOFToUnexpected(err))
	}
	return b, nil
}

func (r *seriesReader) getBytes(ds structure.DataSeries, n int32) ([]byte, error) {
	s, err := r.stream(ds)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := cramio.ReadFull(s, buf); err != nil {
		return nil, fmt.Errorf("reading series %s: %w", ds, err)
	}
	return buf, nil
}

func (r *seriesReader) getStopBytes(ds structure.DataSeries) ([]byte, error) {
	s, err := r.stream(ds)
	if err != nil {
		return nil, err
	}
	stop, ok := r.stops[ds]
	if !ok {
		return nil, fmt.Errorf("series %s is not framed with a stop byte", ds)
	}
	var out []byte
	for {
		b, err := s.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("series %s ended before its stop byte: %w",
				ds, cramio.EOFToUnexpected(err))
		}
		if b == stop {
			return out, nil
		}
		out = append(out, b)
	}
}

// readRecord decodes one record across its series streams, mirroring
// writeRecord field for field.
func (r *seriesReader) readRecord() (*record.Record, error) {
	rec := &record.Record{
		NextSegmentIndex: record.NoMate,
		PrevSegmentIndex: record.NoMate,
	}
	var err error
	if rec.BAMFlags, err = r.getInt(structure.DSBamFlags); err != nil {
		return nil, err
	}
	if rec.CRAMFlags, err = r.getInt(structure.DSCompressionFlag); err != nil {
		return nil, err
	}
	if rec.ReferenceID, err = r.getInt(structure.DSRefID); err != nil {
		return nil, err
	}
	if rec.ReadLength, err = r.getInt(structure.DSReadLength); err != nil {
		return nil, err
	}
	if rec.ReadLength < 0 {
		return nil, fmt.Errorf("negative read length %d", rec.ReadLength)
	}
	if rec.AlignmentStart, err = r.getInt(structure.DSAlignmentStart); err != nil {
		return nil, err
	}
	if rec.ReadGroupID, err = r.getInt(structure.DSReadGroup); err != nil {
		return nil, err
	}
	name, err := r.getStopBytes(structure.DSReadName)
	if err != nil {
		return nil, err
	}
	rec.ReadName = string(name)
	tagList, err := r.getInt(structure.DSTagIDList)
	if err != nil {
		return nil, err
	}
	if tagList < 0 || int(tagList) >= r.tagDictSize {
		return nil, fmt.Errorf("tag-id list %d outside a dictionary of %d entries",
			tagList, r.tagDictSize)
	}

	if err := r.readMateData(rec); err != nil {
		return nil, err
	}

	if rec.IsSegmentUnmapped() {
		if err := r.readUnmappedBases(rec); err != nil {
			return nil, err
		}
	} else if err := r.readFeatures(rec); err != nil {
		return nil, err
	}

	if rec.MappingQuality, err = r.getInt(structure.DSMappingQuality); err != nil {
		return nil, err
	}
	if rec.CRAMFlags&record.CFQualityScoresStored != 0 {
		if rec.Qualities, err = r.getBytes(structure.DSQualityScore, rec.ReadLength); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (r *seriesReader) readMateData(rec *record.Record) error {
	var err error
	if rec.IsDetached() {
		if rec.MateFlags, err = r.getInt(structure.DSMateFlags); err != nil {
			return err
		}
		if rec.NextFragmentRefID, err = r.getInt(structure.DSNextFragmentRef); err != nil {
			return err
		}
		if rec.NextFragmentStart, err = r.getInt(structure.DSNextFragmentPos); err != nil {
			return err
		}
		rec.TemplateSize, err = r.getInt(structure.DSTemplateSize)
		return err
	}
	if rec.HasMateDownstream() {
		rec.RecordsToNextFragment, err = r.getInt(structure.DSNextFragment)
		return err
	}
	return nil
}

func (r *seriesReader) readUnmappedBases(rec *record.Record) error {
	if rec.HasUnknownBases() {
		return nil
	}
	bases, err := r.getBytes(structure.DSBase, rec.ReadLength)
	if err != nil {
		return err
	}
	rec.Bases = bases
	return nil
}

// readFeatures decodes the feature list: count, then per feature the
// operator, the position delta accumulated against the previous feature,
// and the operator-specific payload. Substitutions carry their matrix code
// only; the bases are resolved later against the reference.
func (r *seriesReader) readFeatures(rec *record.Record) error {
	n, err := r.getInt(structure.DSFeatureCount)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("negative feature count %d", n)
	}
	if n == 0 {
		rec.Cigar = record.CigarFromFeatures(nil, rec.ReadLength)
		return nil
	}
	features := make([]record.ReadFeature, 0, n)
	prevPos := int32(0)
	for i := int32(0); i < n; i++ {
		op, err := r.getByte(structure.DSFeatureCode)
		if err != nil {
			return err
		}
		delta, err := r.getInt(structure.DSFeaturePosition)
		if err != nil {
			return err
		}
		pos := prevPos + delta
		prevPos = pos

		var f record.ReadFeature
		switch op {
		case record.OpSubstitution:
			code, err := r.getByte(structure.DSSubstitution)
			if err != nil {
				return err
			}
			f = record.Substitution{Pos: pos, Code: code}
		case record.OpInsertion:
			bases, err := r.getStopBytes(structure.DSInsertion)
			if err != nil {
				return err
			}
			f = record.Insertion{Pos: pos, Bases: bases}
		case record.OpInsertBase:
			b, err := r.getByte(structure.DSBase)
			if err != nil {
				return err
			}
			f = record.InsertBase{Pos: pos, Base: b}
		case record.OpDeletion:
			length, err := r.getInt(structure.DSDeletionLength)
			if err != nil {
				return err
			}
			f = record.Deletion{Pos: pos, Length: length}
		case record.OpRefSkip:
			length, err := r.getInt(structure.DSRefSkip)
			if err != nil {
				return err
			}
			f = record.RefSkip{Pos: pos, Length: length}
		case record.OpSoftClip:
			bases, err := r.getStopBytes(structure.DSSoftClip)
			if err != nil {
				return err
			}
			f = record.SoftClip{Pos: pos, Bases: bases}
		case record.OpHardClip:
			length, err := r.getInt(structure.DSHardClip)
			if err != nil {
				return err
			}
			f = record.HardClip{Pos: pos, Length: length}
		case record.OpPadding:
			length, err := r.getInt(structure.DSPadding)
			if err != nil {
				return err
			}
			f = record.Padding{Pos: pos, Length: length}
		case record.OpReadBase:
			base, err := r.getByte(structure.DSBase)
			if err != nil {
				return err
			}
			quality, err := r.getByte(structure.DSQualityScore)
			if err != nil {
				return err
			}
			f = record.ReadBase{Pos: pos, Base: base, Quality: quality}
		default:
			return fmt.Errorf("unhandled read feature operator %q", op)
		}
		features = append(features, f)
	}
	rec.Features = features
	rec.Cigar = record.CigarFromFeatures(features, rec.ReadLength)
	return nil
}

// leftover reports the first series stream with bytes remaining after every
// declared record has been decoded.
func (r *seriesReader) leftover() error {
	for _, ds := range defaultSeriesOrder {
		if s, ok := r.streams[ds]; ok && s.Len() > 0 {
			return fmt.Errorf("series %s stream holds %d undecoded bytes", ds, s.Len())
		}
	}
	return nil
}

// ReadSliceRecords decodes every record framed in one slice against its
// container's compression header, then resolves mate links within the
// slice. Record indices are slice-local.
func ReadSliceRecords(cache *codec.Cache, header *structure.CompressionHeader, s *structure.Slice) ([]*record.Record, error) {
	sr, err := newSeriesReader(cache, header, s)
	if err != nil {
		return nil, err
	}
	records := make([]*record.Record, 0, s.RecordCount)
	for i := int32(0); i < s.RecordCount; i++ {
		rec, err := sr.readRecord()
		if err != nil {
			return nil, fmt.Errorf("decoding record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	if err := sr.leftover(); err != nil {
		return nil, err
	}
	if err := record.ResolveMates(records); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadContainerRecords decodes the records of every slice in a container,
// in slice order.
func ReadContainerRecords(c *structure.Container) ([]*record.Record, error) {
	cache := codec.NewCache()
	var records []*record.Record
	for i, s := range c.Slices {
		rs, err := ReadSliceRecords(cache, c.CompressionHeader, s)
		if err != nil {
			return nil, fmt.Errorf("slice %d: %w", i, err)
		}
		records = append(records, rs...)
	}
	return records, nil
}
