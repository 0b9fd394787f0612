package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karvela/crampack/internal/structure"
)

func testMatrix() *structure.SubstitutionMatrix {
	return structure.NewSubstitutionMatrix([5][5]int64{})
}

func TestCigarRoundTripThroughFeatures(t *testing.T) {
	t.Parallel()

	ref := []byte(strings.Repeat("ACGTACGTAC", 10))

	tests := []struct {
		name  string
		cigar string
		read  string
	}{
		{name: "all match", cigar: "10M", read: "ACGTACGTAC"},
		{name: "one mismatch", cigar: "10M", read: "ACGTTCGTAC"},
		{name: "insertion", cigar: "4M2I4M", read: "ACGTTTACGT"},
		{name: "deletion", cigar: "5M2D5M", read: "ACGTAGTACG"},
		{name: "ref skip", cigar: "4M3N6M", read: "ACGTGTACGT"},
		{name: "soft clips", cigar: "3S5M2S", read: "TTTACGTACG"},
		{name: "hard clips", cigar: "2H10M2H", read: "ACGTACGTAC"},
		{name: "padding", cigar: "5M1P5M", read: "ACGTACGTAC"},
		{name: "mixed", cigar: "2S3M1I2M1D2M", read: "GGACGTACGT"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cigar, err := ParseCigar(tt.cigar)
			require.NoError(t, err)
			require.Equal(t, int32(len(tt.read)), ReadLengthFromCigar(cigar))

			features, err := ToFeatures(cigar, 1, []byte(tt.read), nil, ref)
			require.NoError(t, err)

			rebuilt := CigarFromFeatures(features, int32(len(tt.read)))
			assert.Equal(t, tt.cigar, FormatCigar(rebuilt))
		})
	}
}

func TestRestoreReadBases(t *testing.T) {
	t.Parallel()

	ref := []byte(strings.Repeat("ACGTACGTAC", 10))

	tests := []struct {
		name           string
		cigar          string
		read           string
		alignmentStart int32
	}{
		{name: "all match", cigar: "10M", read: "ACGTACGTAC", alignmentStart: 1},
		{name: "offset start", cigar: "10M", read: "GTACGTACGT", alignmentStart: 3},
		{name: "substitutions", cigar: "10M", read: "TCGTACGTAG", alignmentStart: 1},
		{name: "insertion", cigar: "4M2I4M", read: "ACGTTTACGT", alignmentStart: 1},
		{name: "deletion", cigar: "5M2D5M", read: "ACGTAGTACG", alignmentStart: 1},
		{name: "soft clip", cigar: "3S7M", read: "TTTACGTACG", alignmentStart: 1},
		{name: "lower case read", cigar: "10M", read: "acgtacgtac", alignmentStart: 1},
		{name: "non-ACGTN mismatch", cigar: "10M", read: "ACGRACGTAC", alignmentStart: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cigar, err := ParseCigar(tt.cigar)
			require.NoError(t, err)
			features, err := ToFeatures(cigar, tt.alignmentStart, []byte(tt.read), nil, ref)
			require.NoError(t, err)

			restored := RestoreReadBases(features, false, tt.alignmentStart,
				int32(len(tt.read)), ref, 0, testMatrix())
			assert.Equal(t, strings.ToUpper(tt.read), string(restored))
		})
	}
}

func TestRestoreReadBasesBeyondReference(t *testing.T) {
	t.Parallel()

	// the read hangs two bases past the end of the reference
	ref := []byte("ACGTACGT")
	cigar, err := ParseCigar("10M")
	require.NoError(t, err)

	read := []byte("ACGTACGTNN")
	features, err := ToFeatures(cigar, 1, read, nil, ref)
	require.NoError(t, err)
	assert.Empty(t, features)

	restored := RestoreReadBases(features, false, 1, 10, ref, 0, testMatrix())
	assert.Equal(t, "ACGTACGTNN", string(restored))
}

func TestRestoreReadBasesUnknown(t *testing.T) {
	t.Parallel()

	restored := RestoreReadBases(nil, true, 1, 10, []byte("ACGTACGTAC"), 0, testMatrix())
	assert.Empty(t, restored)
}

func TestRestoreReadBasesWithReferenceOffset(t *testing.T) {
	t.Parallel()

	// reference window starting at zero-based offset 20
	full := []byte(strings.Repeat("ACGTACGTAC", 10))
	window := full[20:40]

	cigar, err := ParseCigar("10M")
	require.NoError(t, err)
	features, err := ToFeatures(cigar, 21, []byte("ACGTACGTAC"), nil, full)
	require.NoError(t, err)

	restored := RestoreReadBases(features, false, 21, 10, window, 20, testMatrix())
	assert.Equal(t, "ACGTACGTAC", string(restored))
}

func TestAlignmentEnd(t *testing.T) {
	t.Parallel()

	ref := []byte(strings.Repeat("ACGTACGTAC", 10))

	tests := []struct {
		name  string
		cigar string
		read  string
		end   int32
	}{
		{name: "plain match", cigar: "10M", read: "ACGTACGTAC", end: 10},
		{name: "deletion extends", cigar: "5M2D5M", read: "ACGTAGTACG", end: 12},
		{name: "skip extends", cigar: "4M3N6M", read: "ACGTGTACGT", end: 13},
		{name: "insertion shrinks", cigar: "4M2I4M", read: "ACGTTTACGT", end: 8},
		{name: "soft clip shrinks", cigar: "3S7M", read: "TTTACGTACG", end: 7},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cigar, err := ParseCigar(tt.cigar)
			require.NoError(t, err)
			features, err := ToFeatures(cigar, 1, []byte(tt.read), nil, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.end, AlignmentEnd(1, int32(len(tt.read)), features))
		})
	}
}

func TestToFeaturesLengthMismatch(t *testing.T) {
	t.Parallel()

	cigar, err := ParseCigar("10M")
	require.NoError(t, err)
	_, err = ToFeatures(cigar, 1, []byte("ACGT"), nil, []byte("ACGTACGTAC"))
	assert.Error(t, err)
}

func TestParseCigarErrors(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"M", "10", "10Z", "3M4"} {
		_, err := ParseCigar(bad)
		assert.Error(t, err, "cigar %q", bad)
	}
}
