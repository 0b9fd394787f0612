package build

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karvela/crampack/internal/codec"
	"github.com/karvela/crampack/internal/record"
	"github.com/karvela/crampack/internal/structure"
)

// gappedRecord builds a read with a soft clip, a substitution and a
// deletion against the repeating ACGT reference used by testRecords.
func gappedRecord(t *testing.T, ref []byte) *record.Record {
	t.Helper()

	cigar, err := record.ParseCigar("2S4M1D4M")
	require.NoError(t, err)
	start := int32(41)
	bases := append([]byte("GG"), ref[start-1:start+3]...)
	bases[3] = 'T' // mismatch against the reference 'C'
	bases = append(bases, ref[start+4:start+8]...)
	quals := bytes.Repeat([]byte{35}, 10)
	features, err := record.ToFeatures(cigar, start, bases, quals, ref)
	require.NoError(t, err)
	return &record.Record{
		CRAMFlags:      record.CFQualityScoresStored,
		ReferenceID:    0,
		ReadLength:     10,
		AlignmentStart: start,
		ReadName:       "g1",
		MappingQuality: 13,
		Bases:          bases,
		Qualities:      quals,
		Cigar:          cigar,
		Features:       features,
	}
}

func TestContainerRecordsRoundTrip(t *testing.T) {
	t.Parallel()

	ref := bytes.Repeat([]byte("ACGT"), 100)
	records := append(testRecords(t, 0, "r1", "r2"), gappedRecord(t, ref))

	c, err := ContainerFactory{Strategy: EncodingStrategy{RecordsPerSlice: 2}}.Build(records, 7)
	require.NoError(t, err)
	require.Len(t, c.Slices, 2)

	var buf bytes.Buffer
	require.NoError(t, c.Write(3, &buf))
	got, err := structure.ReadContainer(3, &buf)
	require.NoError(t, err)

	decoded, err := ReadContainerRecords(got)
	require.NoError(t, err)
	require.Len(t, decoded, len(records))

	for i, want := range records {
		d := decoded[i]
		assert.Equal(t, want.BAMFlags, d.BAMFlags)
		assert.Equal(t, want.CRAMFlags, d.CRAMFlags)
		assert.Equal(t, want.ReferenceID, d.ReferenceID)
		assert.Equal(t, want.ReadLength, d.ReadLength)
		assert.Equal(t, want.AlignmentStart, d.AlignmentStart)
		assert.Equal(t, want.ReadName, d.ReadName)
		assert.Equal(t, want.MappingQuality, d.MappingQuality)
		assert.Equal(t, want.Qualities, d.Qualities)
		assert.Equal(t, want.Cigar, d.Cigar)

		restored := record.RestoreReadBases(d.Features, d.HasUnknownBases(),
			d.AlignmentStart, d.ReadLength, ref, 0, got.CompressionHeader.SubstitutionMatrix)
		assert.Equal(t, want.Bases, restored)
	}
}

func TestReadSliceRecordsResolvesMates(t *testing.T) {
	t.Parallel()

	records := testRecords(t, 0, "p", "p")
	records[0].BAMFlags |= record.FlagMultiSegment | record.FlagFirstSegment
	records[0].CRAMFlags |= record.CFMateDownstream
	records[0].RecordsToNextFragment = 0
	records[1].BAMFlags |= record.FlagMultiSegment | record.FlagLastSegment | record.FlagNegativeStrand

	header := CompressionHeaderFactory{}.Build(records)
	s, err := SliceFactory{Matrix: header.SubstitutionMatrix}.Build(records, 0)
	require.NoError(t, err)

	decoded, err := ReadSliceRecords(codec.NewCache(), header, s)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	first, last := decoded[0], decoded[1]
	assert.Equal(t, 1, first.NextSegmentIndex)
	assert.Equal(t, 0, last.PrevSegmentIndex)

	// mate fields are recomputed from the restored chain
	assert.Equal(t, int32(11), first.NextFragmentStart)
	assert.Equal(t, record.MateNegativeStrand, first.MateFlags)
	assert.Equal(t, int32(1), last.NextFragmentStart)

	// reads span [1, 8] and [11, 18]
	assert.Equal(t, int32(18), first.TemplateSize)
	assert.Equal(t, int32(-18), last.TemplateSize)
}

func TestReadSliceRecordsDetachedMate(t *testing.T) {
	t.Parallel()

	records := testRecords(t, 0, "d1")
	records[0].BAMFlags |= record.FlagMultiSegment
	records[0].CRAMFlags |= record.CFDetached
	records[0].MateFlags = record.MateUnmapped
	records[0].NextFragmentRefID = 2
	records[0].NextFragmentStart = 777
	records[0].TemplateSize = -42

	header := CompressionHeaderFactory{}.Build(records)
	s, err := SliceFactory{Matrix: header.SubstitutionMatrix}.Build(records, 0)
	require.NoError(t, err)

	decoded, err := ReadSliceRecords(codec.NewCache(), header, s)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, record.MateUnmapped, decoded[0].MateFlags)
	assert.Equal(t, int32(2), decoded[0].NextFragmentRefID)
	assert.Equal(t, int32(777), decoded[0].NextFragmentStart)
	assert.Equal(t, int32(-42), decoded[0].TemplateSize)
}

func TestReadSliceRecordsUnmapped(t *testing.T) {
	t.Parallel()

	records := []*record.Record{
		{
			BAMFlags:    record.FlagSegmentUnmapped,
			ReferenceID: structure.UnmappedRefID,
			ReadLength:  4,
			ReadName:    "u1",
			Bases:       []byte("ACGT"),
		},
		{
			BAMFlags:    record.FlagSegmentUnmapped,
			CRAMFlags:   record.CFUnknownBases,
			ReferenceID: structure.UnmappedRefID,
			ReadLength:  6,
			ReadName:    "u2",
		},
	}
	header := CompressionHeaderFactory{}.Build(records)
	s, err := SliceFactory{Matrix: header.SubstitutionMatrix}.Build(records, 0)
	require.NoError(t, err)

	decoded, err := ReadSliceRecords(codec.NewCache(), header, s)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, []byte("ACGT"), decoded[0].Bases)
	assert.Nil(t, decoded[1].Bases)
	assert.Equal(t, int32(6), decoded[1].ReadLength)
}

func TestReadSliceRecordsCountMismatch(t *testing.T) {
	t.Parallel()

	records := testRecords(t, 0, "r1", "r2")
	header := CompressionHeaderFactory{}.Build(records)

	s, err := SliceFactory{Matrix: header.SubstitutionMatrix}.Build(records, 0)
	require.NoError(t, err)
	s.RecordCount = 3
	_, err = ReadSliceRecords(codec.NewCache(), header, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding record 2")

	s, err = SliceFactory{Matrix: header.SubstitutionMatrix}.Build(records, 0)
	require.NoError(t, err)
	s.RecordCount = 1
	_, err = ReadSliceRecords(codec.NewCache(), header, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undecoded bytes")
}

func TestStreamRecordsRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, []byte("@HD\tVN:1.6\n"), "round-trip", EncodingStrategy{})
	require.NoError(t, err)
	records := append(testRecords(t, 0, "r1", "r2"), testRecords(t, 1, "r3")...)
	require.NoError(t, w.WriteRecords(records))
	require.NoError(t, w.Close())

	_, err = structure.ReadFileDefinition(&buf)
	require.NoError(t, err)
	_, err = structure.ReadFileHeaderContainer(3, &buf)
	require.NoError(t, err)

	var names []string
	for {
		c, err := structure.ReadContainer(3, &buf)
		require.NoError(t, err)
		if c.IsEOF() {
			break
		}
		decoded, err := ReadContainerRecords(c)
		require.NoError(t, err)
		for _, r := range decoded {
			names = append(names, r.ReadName)
		}
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, names)
}
