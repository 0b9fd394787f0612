package build

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karvela/crampack/internal/codec"
	"github.com/karvela/crampack/internal/cramio"
	"github.com/karvela/crampack/internal/record"
	"github.com/karvela/crampack/internal/structure"
)

func TestDefaultEncodingMapAssignsUniqueIDs(t *testing.T) {
	t.Parallel()

	em := DefaultEncodingMap()
	assert.Equal(t, len(defaultSeriesOrder), em.Len())

	ids := em.ExternalContentIDs()
	require.Len(t, ids, len(defaultSeriesOrder))
	for i, id := range ids {
		assert.Equal(t, int32(i+1), id)
	}

	d, ok := em.Lookup(structure.DSReadName)
	require.True(t, ok)
	assert.Equal(t, structure.EncodingByteArrayStop, d.ID)
	d, ok = em.Lookup(structure.DSBamFlags)
	require.True(t, ok)
	assert.Equal(t, structure.EncodingExternal, d.ID)
}

func TestSeriesContentIDStable(t *testing.T) {
	t.Parallel()

	id, ok := SeriesContentID(structure.DSBamFlags)
	require.True(t, ok)
	assert.Equal(t, int32(1), id)

	_, ok = SeriesContentID(structure.DSScoresStretch)
	assert.False(t, ok)
}

func TestSubstitutionFrequencies(t *testing.T) {
	t.Parallel()

	records := []*record.Record{
		{Features: []record.ReadFeature{
			record.Substitution{Pos: 1, RefBase: 'A', Base: 'T', Code: record.NoSubstitutionCode},
			record.Substitution{Pos: 5, RefBase: 'A', Base: 'T', Code: record.NoSubstitutionCode},
			record.Substitution{Pos: 9, RefBase: 'c', Base: 'g', Code: record.NoSubstitutionCode},
			record.Deletion{Pos: 3, Length: 2},
		}},
	}
	freqs := SubstitutionFrequencies(records)
	assert.Equal(t, int64(2), freqs[0][3]) // A -> T
	assert.Equal(t, int64(1), freqs[1][2]) // C -> G, case folded

	// the dominant substitution wins code 0
	m := structure.NewSubstitutionMatrix(freqs)
	assert.Equal(t, byte(0), m.Code('A', 'T'))
}

func TestBestMethod(t *testing.T) {
	t.Parallel()

	cache := codec.NewCache()

	compressible := bytes.Repeat([]byte("ACGTACGTAA"), 500)
	method, _ := BestMethod(cache, compressible, codec.NoArg)
	assert.NotEqual(t, codec.Raw, method)

	// nothing beats raw on a few bytes of unique content
	method, arg := BestMethod(cache, []byte{0x1f, 0x8b, 0x42}, codec.NoArg)
	assert.Equal(t, codec.Raw, method)
	assert.Equal(t, codec.NoArg, arg)
}

func testRecords(t *testing.T, refID int32, names ...string) []*record.Record {
	t.Helper()

	ref := bytes.Repeat([]byte("ACGT"), 100)
	records := make([]*record.Record, len(names))
	for i, name := range names {
		start := int32(10*i + 1)
		cigar, err := record.ParseCigar("8M")
		require.NoError(t, err)
		bases := ref[start-1 : start+7]
		quals := bytes.Repeat([]byte{30}, 8)
		features, err := record.ToFeatures(cigar, start, bases, quals, ref)
		require.NoError(t, err)
		records[i] = &record.Record{
			BAMFlags:       0,
			CRAMFlags:      record.CFQualityScoresStored,
			ReferenceID:    refID,
			ReadLength:     8,
			AlignmentStart: start,
			ReadName:       name,
			MappingQuality: 60,
			Bases:          bases,
			Qualities:      quals,
			Cigar:          cigar,
			Features:       features,
		}
	}
	return records
}

func TestSliceFactorySingleRef(t *testing.T) {
	t.Parallel()

	records := testRecords(t, 0, "r1", "r2", "r3")
	header := CompressionHeaderFactory{}.Build(records)
	s, err := SliceFactory{Matrix: header.SubstitutionMatrix}.Build(records, 5)
	require.NoError(t, err)

	assert.Equal(t, structure.SingleRefContext(0), s.Alignment.ReferenceContext)
	assert.Equal(t, int32(1), s.Alignment.Start)
	// reads at 1, 11, 21, each 8 bases: [1, 28]
	assert.Equal(t, int32(28), s.Alignment.Span)
	assert.Equal(t, int32(3), s.RecordCount)
	assert.Equal(t, int64(5), s.GlobalRecordCounter)
	assert.Equal(t, int64(24), s.BaseCount)

	// read names land in their stream with the stop byte
	rnID, ok := SeriesContentID(structure.DSReadName)
	require.True(t, ok)
	rn, ok := s.ExternalBlock(rnID)
	require.True(t, ok)
	raw, err := rn.RawContent()
	require.NoError(t, err)
	assert.Equal(t, "r1\tr2\tr3\t", string(raw))

	// quality stream is the concatenation of per-record scores
	qsID, ok := SeriesContentID(structure.DSQualityScore)
	require.True(t, ok)
	qs, ok := s.ExternalBlock(qsID)
	require.True(t, ok)
	raw, err = qs.RawContent()
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{30}, 24), raw)

	// perfectly matching reads emit zero features
	fnID, ok := SeriesContentID(structure.DSFeatureCount)
	require.True(t, ok)
	fn, ok := s.ExternalBlock(fnID)
	require.True(t, ok)
	raw, err = fn.RawContent()
	require.NoError(t, err)
	r := bytes.NewReader(raw)
	for i := 0; i < 3; i++ {
		n, err := cramio.ReadITF8(r)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestSliceFactoryUnmappedBatch(t *testing.T) {
	t.Parallel()

	r := &record.Record{
		BAMFlags:       record.FlagSegmentUnmapped,
		ReferenceID:    structure.UnmappedRefID,
		ReadLength:     4,
		AlignmentStart: 0,
		ReadName:       "u1",
		Bases:          []byte("ACGT"),
	}
	header := CompressionHeaderFactory{}.Build([]*record.Record{r})
	s, err := SliceFactory{Matrix: header.SubstitutionMatrix}.Build([]*record.Record{r}, 0)
	require.NoError(t, err)

	assert.True(t, s.Alignment.ReferenceContext.IsUnmapped())

	baID, ok := SeriesContentID(structure.DSBase)
	require.True(t, ok)
	ba, ok := s.ExternalBlock(baID)
	require.True(t, ok)
	raw, err := ba.RawContent()
	require.NoError(t, err)
	assert.Equal(t, []byte("ACGT"), raw)
}

func TestSliceFactoryMixedRefsBecomeMultiRef(t *testing.T) {
	t.Parallel()

	records := append(testRecords(t, 0, "a"), testRecords(t, 1, "b")...)
	header := CompressionHeaderFactory{}.Build(records)
	s, err := SliceFactory{Matrix: header.SubstitutionMatrix}.Build(records, 0)
	require.NoError(t, err)
	assert.True(t, s.Alignment.ReferenceContext.IsMultiRef())
}

func TestContainerFactoryRoundTrip(t *testing.T) {
	t.Parallel()

	records := testRecords(t, 0, "r1", "r2", "r3", "r4", "r5")
	c, err := ContainerFactory{Strategy: EncodingStrategy{RecordsPerSlice: 2}}.Build(records, 100)
	require.NoError(t, err)
	require.Len(t, c.Slices, 3)
	assert.Equal(t, int32(5), c.Header.RecordCount)
	assert.Equal(t, int64(100), c.Header.GlobalRecordCounter)
	assert.Equal(t, int64(100), c.Slices[0].GlobalRecordCounter)
	assert.Equal(t, int64(102), c.Slices[1].GlobalRecordCounter)
	assert.Equal(t, int64(104), c.Slices[2].GlobalRecordCounter)

	var buf bytes.Buffer
	require.NoError(t, c.Write(3, &buf))

	got, err := structure.ReadContainer(3, &buf)
	require.NoError(t, err)
	require.Len(t, got.Slices, 3)
	assert.Equal(t, int32(5), got.Header.RecordCount)
	assert.Equal(t, int64(40), got.Header.BaseCount)
	assert.True(t, got.CompressionHeader.ReadNamesIncluded)

	// the read-name stream survives the compression probe
	rnID, ok := SeriesContentID(structure.DSReadName)
	require.True(t, ok)
	rn, ok := got.Slices[0].ExternalBlock(rnID)
	require.True(t, ok)
	require.NoError(t, rn.Uncompress(codec.NewCache()))
	raw, err := rn.RawContent()
	require.NoError(t, err)
	assert.Equal(t, "r1\tr2\t", string(raw))
}

func TestPartitionByReference(t *testing.T) {
	t.Parallel()

	unmapped := &record.Record{BAMFlags: record.FlagSegmentUnmapped, ReferenceID: -1}
	a := testRecords(t, 0, "a1", "a2")
	b := testRecords(t, 1, "b1")
	records := append(append(append([]*record.Record{}, a...), b...), unmapped)

	runs := PartitionByReference(records)
	require.Len(t, runs, 3)
	assert.Len(t, runs[0], 2)
	assert.Len(t, runs[1], 1)
	assert.Len(t, runs[2], 1)

	assert.Empty(t, PartitionByReference(nil))
}

func TestWriterStream(t *testing.T) {
	t.Parallel()

	headerText := []byte("@HD\tVN:1.6\n")
	var buf bytes.Buffer
	w, err := NewWriter(&buf, headerText, "stream-test", EncodingStrategy{Workers: 1})
	require.NoError(t, err)

	records := append(testRecords(t, 0, "r1", "r2"), testRecords(t, 1, "r3")...)
	require.NoError(t, w.WriteRecords(records))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close()) // idempotent
	assert.Error(t, w.WriteRecords(records))

	fd, err := structure.ReadFileDefinition(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(3), fd.Major)

	text, err := structure.ReadFileHeaderContainer(3, &buf)
	require.NoError(t, err)
	assert.Equal(t, headerText, text)

	// one container per reference run, then the sentinel
	first, err := structure.ReadContainer(3, &buf)
	require.NoError(t, err)
	assert.Equal(t, int32(2), first.Header.RecordCount)
	assert.Equal(t, int64(0), first.Header.GlobalRecordCounter)

	second, err := structure.ReadContainer(3, &buf)
	require.NoError(t, err)
	assert.Equal(t, int32(1), second.Header.RecordCount)
	assert.Equal(t, int64(2), second.Header.GlobalRecordCounter)

	eof, err := structure.ReadContainer(3, &buf)
	require.NoError(t, err)
	assert.True(t, eof.IsEOF())
	assert.Zero(t, buf.Len())
}

func TestBuildContainersMatchesSerial(t *testing.T) {
	t.Parallel()

	var batches [][]*record.Record
	for i := 0; i < 8; i++ {
		names := []string{
			fmt.Sprintf("b%d-r1", i),
			fmt.Sprintf("b%d-r2", i),
		}
		batches = append(batches, testRecords(t, int32(i), names...))
	}

	var serial bytes.Buffer
	counter := int64(0)
	factory := ContainerFactory{}
	for _, batch := range batches {
		c, err := factory.Build(batch, counter)
		require.NoError(t, err)
		require.NoError(t, c.Write(3, &serial))
		counter += int64(len(batch))
	}

	var parallel bytes.Buffer
	err := BuildContainers(context.Background(), &parallel, batches, EncodingStrategy{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, serial.Bytes(), parallel.Bytes())
}

func TestBuildContainersPropagatesErrors(t *testing.T) {
	t.Parallel()

	bad := []*record.Record{{
		CRAMFlags:  record.CFQualityScoresStored,
		ReadLength: 10,
		Qualities:  []byte{1, 2}, // length disagrees with the read
	}}
	err := BuildContainers(context.Background(), &bytes.Buffer{}, [][]*record.Record{bad}, EncodingStrategy{Workers: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality scores")
}

func TestBuildContainersReturnsAfterEarlyFailure(t *testing.T) {
	t.Parallel()

	// the first batch fails; the rest keep the worker producing results
	// well past the channel buffer, which the collector must keep draining
	bad := []*record.Record{{
		CRAMFlags:  record.CFQualityScoresStored,
		ReadLength: 10,
		Qualities:  []byte{1, 2},
	}}
	batches := [][]*record.Record{bad}
	for i := 0; i < 16; i++ {
		batches = append(batches, testRecords(t, int32(i), fmt.Sprintf("r%d", i)))
	}

	var buf bytes.Buffer
	err := BuildContainers(context.Background(), &buf, batches, EncodingStrategy{Workers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality scores")
	assert.Zero(t, buf.Len())
}

func TestEncodingStrategyValidation(t *testing.T) {
	t.Parallel()

	_, err := ContainerFactory{Strategy: EncodingStrategy{Version: 5}}.Build(testRecords(t, 0, "r"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format version")

	_, err = ContainerFactory{Strategy: EncodingStrategy{RecordsPerSlice: -1}}.Build(testRecords(t, 0, "r"), 0)
	assert.Error(t, err)

	_, err = NewWriter(&bytes.Buffer{}, nil, "x", EncodingStrategy{GzipLevel: 100})
	assert.Error(t, err)
}

func TestWriterUsesStrategyVersion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, []byte("@HD\n"), "v2-test", EncodingStrategy{Version: 2})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	fd, err := structure.ReadFileDefinition(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(2), fd.Major)

	_, err = structure.ReadFileHeaderContainer(2, &buf)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(string(buf.Bytes()), string(structure.EOFMarker(2))))
}
