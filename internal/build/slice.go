package build

import (
	"fmt"

	"github.com/karvela/crampack/internal/codec"
	"github.com/karvela/crampack/internal/record"
	"github.com/karvela/crampack/internal/structure"
)

// SliceFactory turns record batches into framed slices.
type SliceFactory struct {
	Matrix *structure.SubstitutionMatrix
}

// Build serializes one batch into a slice: per-series external blocks around
// an empty core block, alignment context aggregated over the batch.
func (f SliceFactory) Build(records []*record.Record, globalCounter int64) (*structure.Slice, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("slice requires at least one record")
	}
	if f.Matrix == nil {
		return nil, fmt.Errorf("slice factory requires a substitution matrix")
	}

	w := newSeriesWriter(f.Matrix)
	var bases int64
	for _, r := range records {
		if err := w.writeRecord(r); err != nil {
			return nil, err
		}
		bases += int64(r.ReadLength)
	}

	s, err := structure.NewSlice(batchAlignment(records), structure.NewCoreBlock([]byte{}))
	if err != nil {
		return nil, err
	}
	s.RecordCount = int32(len(records))
	s.GlobalRecordCounter = globalCounter
	s.BaseCount = bases

	blocks, err := w.externalBlocks()
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		if err := s.AddExternalBlock(b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// batchAlignment classifies a batch: one mapped reference makes a
// single-reference slice with the union span, several make a multi-reference
// slice, none makes an unmapped slice.
func batchAlignment(records []*record.Record) structure.AlignmentContext {
	refID := int32(structure.UnmappedRefID)
	mixed := false
	for _, r := range records {
		if r.IsSegmentUnmapped() || r.ReferenceID < 0 {
			continue
		}
		switch {
		case refID == structure.UnmappedRefID:
			refID = r.ReferenceID
		case refID != r.ReferenceID:
			mixed = true
		}
	}
	if mixed {
		return structure.MultiRefAlignmentContext()
	}
	if refID == structure.UnmappedRefID {
		return structure.UnmappedAlignmentContext()
	}

	start := int32(0)
	end := int32(0)
	first := true
	for _, r := range records {
		if r.IsSegmentUnmapped() {
			continue
		}
		e := r.AlignmentEnd()
		if first {
			start, end = r.AlignmentStart, e
			first = false
			continue
		}
		if r.AlignmentStart < start {
			start = r.AlignmentStart
		}
		if e > end {
			end = e
		}
	}
	return structure.AlignmentContext{
		ReferenceContext: structure.SingleRefContext(refID),
		Start:            start,
		Span:             end - start + 1,
	}
}

// compressSliceBlocks probes each external stream and compresses it with the
// winning method.
func compressSliceBlocks(cache *codec.Cache, s *structure.Slice, gzipLevel int) error {
	return s.CompressBlocks(cache, func(contentID int32) (codec.Method, int) {
		b, ok := s.ExternalBlock(contentID)
		if !ok {
			return codec.Gzip, gzipLevel
		}
		raw, err := b.RawContent()
		if err != nil {
			return codec.Gzip, gzipLevel
		}
		return BestMethod(cache, raw, gzipLevel)
	})
}
