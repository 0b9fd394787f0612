package build

import (
	"bytes"
	"fmt"

	"github.com/karvela/crampack/internal/cramio"
	"github.com/karvela/crampack/internal/record"
	"github.com/karvela/crampack/internal/structure"
)

// seriesWriter accumulates one byte stream per data series while records are
// serialized, one stream becoming one external block.
type seriesWriter struct {
	matrix  *structure.SubstitutionMatrix
	streams map[structure.DataSeries]*bytes.Buffer
}

func newSeriesWriter(matrix *structure.SubstitutionMatrix) *seriesWriter {
	return &seriesWriter{
		matrix:  matrix,
		streams: make(map[structure.DataSeries]*bytes.Buffer),
	}
}

func (w *seriesWriter) stream(ds structure.DataSeries) *bytes.Buffer {
	buf, ok := w.streams[ds]
	if !ok {
		buf = &bytes.Buffer{}
		w.streams[ds] = buf
	}
	return buf
}

func (w *seriesWriter) putInt(ds structure.DataSeries, v int32) {
	cramio.WriteITF8(w.stream(ds), v)
}

func (w *seriesWriter) putByte(ds structure.DataSeries, b byte) {
	w.stream(ds).WriteByte(b)
}

func (w *seriesWriter) putStopBytes(ds structure.DataSeries, p []byte, stop byte) {
	buf := w.stream(ds)
	buf.Write(p)
	buf.WriteByte(stop)
}

// writeRecord appends one record across its series streams.
func (w *seriesWriter) writeRecord(r *record.Record) error {
	w.putInt(structure.DSBamFlags, r.BAMFlags)
	w.putInt(structure.DSCompressionFlag, r.CRAMFlags)
	w.putInt(structure.DSRefID, r.ReferenceID)
	w.putInt(structure.DSReadLength, r.ReadLength)
	w.putInt(structure.DSAlignmentStart, r.AlignmentStart)
	w.putInt(structure.DSReadGroup, r.ReadGroupID)
	w.putStopBytes(structure.DSReadName, []byte(r.ReadName), readNameStop)
	w.putInt(structure.DSTagIDList, 0)

	if err := w.writeMateData(r); err != nil {
		return err
	}

	if r.IsSegmentUnmapped() {
		if err := w.writeUnmappedBases(r); err != nil {
			return err
		}
	} else if err := w.writeFeatures(r); err != nil {
		return err
	}

	w.putInt(structure.DSMappingQuality, r.MappingQuality)
	if r.CRAMFlags&record.CFQualityScoresStored != 0 {
		if int32(len(r.Qualities)) != r.ReadLength {
			return fmt.Errorf("record %q stores %d quality scores for %d bases",
				r.ReadName, len(r.Qualities), r.ReadLength)
		}
		w.stream(structure.DSQualityScore).Write(r.Qualities)
	}
	return nil
}

func (w *seriesWriter) writeMateData(r *record.Record) error {
	if r.IsDetached() {
		w.putInt(structure.DSMateFlags, r.MateFlags)
		w.putInt(structure.DSNextFragmentRef, r.NextFragmentRefID)
		w.putInt(structure.DSNextFragmentPos, r.NextFragmentStart)
		w.putInt(structure.DSTemplateSize, r.TemplateSize)
		return nil
	}
	if r.HasMateDownstream() {
		if r.RecordsToNextFragment < 0 {
			return fmt.Errorf("record %q has a downstream mate but a negative distance %d",
				r.ReadName, r.RecordsToNextFragment)
		}
		w.putInt(structure.DSNextFragment, r.RecordsToNextFragment)
	}
	return nil
}

func (w *seriesWriter) writeUnmappedBases(r *record.Record) error {
	if r.HasUnknownBases() {
		return nil
	}
	if int32(len(r.Bases)) != r.ReadLength {
		return fmt.Errorf("record %q holds %d bases for read length %d",
			r.ReadName, len(r.Bases), r.ReadLength)
	}
	w.stream(structure.DSBase).Write(r.Bases)
	return nil
}

// writeFeatures serializes the feature list: count, then per feature the
// operator, the position delta from the previous feature, and the
// operator-specific payload.
func (w *seriesWriter) writeFeatures(r *record.Record) error {
	w.putInt(structure.DSFeatureCount, int32(len(r.Features)))
	prevPos := int32(0)
	for _, f := range r.Features {
		w.putByte(structure.DSFeatureCode, f.Operator())
		w.putInt(structure.DSFeaturePosition, f.Position()-prevPos)
		prevPos = f.Position()

		switch v := f.(type) {
		case record.Substitution:
			code := v.Code
			if code == record.NoSubstitutionCode {
				code = w.matrix.Code(v.RefBase, v.Base)
			}
			w.putByte(structure.DSSubstitution, code)
		case record.Insertion:
			w.putStopBytes(structure.DSInsertion, v.Bases, 0)
		case record.InsertBase:
			w.putByte(structure.DSBase, v.Base)
		case record.Deletion:
			w.putInt(structure.DSDeletionLength, v.Length)
		case record.RefSkip:
			w.putInt(structure.DSRefSkip, v.Length)
		case record.SoftClip:
			w.putStopBytes(structure.DSSoftClip, v.Bases, 0)
		case record.HardClip:
			w.putInt(structure.DSHardClip, v.Length)
		case record.Padding:
			w.putInt(structure.DSPadding, v.Length)
		case record.ReadBase:
			w.putByte(structure.DSBase, v.Base)
			w.putByte(structure.DSQualityScore, v.Quality)
		default:
			return fmt.Errorf("unhandled read feature operator %q", f.Operator())
		}
	}
	return nil
}

// externalBlocks materializes one raw external block per populated stream.
func (w *seriesWriter) externalBlocks() ([]*structure.Block, error) {
	blocks := make([]*structure.Block, 0, len(w.streams))
	for _, ds := range defaultSeriesOrder {
		buf, ok := w.streams[ds]
		if !ok || buf.Len() == 0 {
			continue
		}
		id, ok := SeriesContentID(ds)
		if !ok {
			return nil, fmt.Errorf("series %s has no assigned content id", ds)
		}
		blocks = append(blocks, structure.NewExternalBlock(id, buf.Bytes()))
	}
	return blocks, nil
}
