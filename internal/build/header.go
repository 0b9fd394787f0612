package build

import (
	"github.com/karvela/crampack/internal/record"
	"github.com/karvela/crampack/internal/structure"
)

// defaultSeriesOrder lists the series the builder emits, in content-id
// assignment order. Ids are 1-based positions in this list and never change.
var defaultSeriesOrder = []structure.DataSeries{
	structure.DSBamFlags,
	structure.DSCompressionFlag,
	structure.DSRefID,
	structure.DSReadLength,
	structure.DSAlignmentStart,
	structure.DSReadGroup,
	structure.DSReadName,
	structure.DSMateFlags,
	structure.DSNextFragmentRef,
	structure.DSNextFragmentPos,
	structure.DSTemplateSize,
	structure.DSNextFragment,
	structure.DSTagIDList,
	structure.DSFeatureCount,
	structure.DSFeatureCode,
	structure.DSFeaturePosition,
	structure.DSDeletionLength,
	structure.DSSubstitution,
	structure.DSInsertion,
	structure.DSRefSkip,
	structure.DSPadding,
	structure.DSHardClip,
	structure.DSSoftClip,
	structure.DSMappingQuality,
	structure.DSBase,
	structure.DSQualityScore,
}

// readNameStop terminates read names in their external stream.
const readNameStop byte = '\t'

// SeriesContentID returns the fixed external content id for a series the
// default policy emits.
func SeriesContentID(ds structure.DataSeries) (int32, bool) {
	for i, s := range defaultSeriesOrder {
		if s == ds {
			return int32(i + 1), true
		}
	}
	return 0, false
}

// DefaultEncodingMap returns a fresh copy of the default policy: every series
// routed to its own external block, read names and inserted base runs framed
// with a stop byte.
func DefaultEncodingMap() *structure.EncodingMap {
	em := structure.NewEncodingMap()
	for i, ds := range defaultSeriesOrder {
		id := int32(i + 1)
		switch ds {
		case structure.DSReadName:
			em.Put(ds, structure.ByteArrayStopDescriptor(readNameStop, id))
		case structure.DSInsertion, structure.DSSoftClip:
			em.Put(ds, structure.ByteArrayStopDescriptor(0, id))
		default:
			em.Put(ds, structure.ExternalDescriptor(id))
		}
	}
	return em
}

// SubstitutionFrequencies tallies observed substitutions over the records'
// feature lists, indexed in A,C,G,T,N order.
func SubstitutionFrequencies(records []*record.Record) [5][5]int64 {
	var freqs [5][5]int64
	for _, r := range records {
		for _, f := range r.Features {
			sub, ok := f.(record.Substitution)
			if !ok {
				continue
			}
			freqs[baseIndex(sub.RefBase)][baseIndex(sub.Base)]++
		}
	}
	return freqs
}

func baseIndex(b byte) int {
	switch b {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'T', 't':
		return 3
	default:
		return 4
	}
}

// CompressionHeaderFactory builds the compression header for one container's
// records.
type CompressionHeaderFactory struct{}

// Build derives the substitution matrix from the records' observed
// substitutions and pairs it with the default encoding map. The tag
// dictionary holds a single empty entry; every record's tag-id list points
// at it.
func (CompressionHeaderFactory) Build(records []*record.Record) *structure.CompressionHeader {
	referenceRequired := false
	for _, r := range records {
		if !r.IsSegmentUnmapped() {
			referenceRequired = true
			break
		}
	}
	return &structure.CompressionHeader{
		ReadNamesIncluded:  true,
		APDelta:            false,
		ReferenceRequired:  referenceRequired,
		SubstitutionMatrix: structure.NewSubstitutionMatrix(SubstitutionFrequencies(records)),
		TagDictionary:      [][]byte{{}},
		EncodingMap:        DefaultEncodingMap(),
		TagEncodings:       map[int32]structure.EncodingDescriptor{},
	}
}
