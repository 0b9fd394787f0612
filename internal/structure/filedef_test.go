package structure

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDefinitionRoundTrip(t *testing.T) {
	t.Parallel()

	fd := NewFileDefinition(3, 0, "sample.cram")
	var buf bytes.Buffer
	require.NoError(t, fd.Write(&buf))
	assert.Equal(t, 26, buf.Len())

	got, err := ReadFileDefinition(&buf)
	require.NoError(t, err)
	assert.Equal(t, fd, got)
	assert.Equal(t, byte(3), got.Major)
	assert.Equal(t, "sample.cram", string(bytes.TrimRight(got.ID[:], "\x00")))
}

func TestFileDefinitionTruncatesLongID(t *testing.T) {
	t.Parallel()

	fd := NewFileDefinition(2, 1, strings.Repeat("x", 40))
	assert.Equal(t, strings.Repeat("x", FileIDLength), string(fd.ID[:]))
}

func TestFileDefinitionBadMagic(t *testing.T) {
	t.Parallel()

	raw := append([]byte("BAM\x01"), make([]byte, 22)...)
	_, err := ReadFileDefinition(bytes.NewReader(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad magic")
}

func TestFileDefinitionTruncated(t *testing.T) {
	t.Parallel()

	_, err := ReadFileDefinition(bytes.NewReader([]byte("CRAM")))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFileHeaderContainerRoundTrip(t *testing.T) {
	t.Parallel()

	text := []byte("@HD\tVN:1.6\tSO:coordinate\n@SQ\tSN:chr1\tLN:248956422\n")
	var buf bytes.Buffer
	require.NoError(t, WriteFileHeaderContainer(3, text, &buf))

	got, err := ReadFileHeaderContainer(3, &buf)
	require.NoError(t, err)
	assert.Equal(t, text, got)
	assert.Zero(t, buf.Len())
}

func TestFileHeaderContainerPadding(t *testing.T) {
	t.Parallel()

	var small bytes.Buffer
	require.NoError(t, WriteFileHeaderContainer(3, []byte("@HD\n"), &small))
	header, err := ReadContainerHeader(3, &small)
	require.NoError(t, err)
	block, err := ReadBlock(3, &small)
	require.NoError(t, err)
	// short headers are padded up to the minimum block size plus the length
	// prefix, leaving room for in-place rewrites
	assert.Equal(t, 4+1024, block.RawSize())
	assert.Equal(t, int32(1), header.BlockCount)

	long := bytes.Repeat([]byte("@CO\tlong header line\n"), 100)
	var big bytes.Buffer
	require.NoError(t, WriteFileHeaderContainer(3, long, &big))
	_, err = ReadContainerHeader(3, &big)
	require.NoError(t, err)
	block, err = ReadBlock(3, &big)
	require.NoError(t, err)
	assert.Equal(t, 4+len(long)+len(long)/2, block.RawSize())

	text, err := ReadFileHeaderContainer(3, bytes.NewReader(bigBytes(t, long)))
	require.NoError(t, err)
	assert.Equal(t, long, text)
}

func bigBytes(t *testing.T, text []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteFileHeaderContainer(3, text, &buf))
	return buf.Bytes()
}

func TestFileHeaderContainerWrongBlockType(t *testing.T) {
	t.Parallel()

	block := NewCoreBlock([]byte("not a header"))
	require.NoError(t, block.Compress(rawCodec{}))
	var body bytes.Buffer
	require.NoError(t, block.Write(3, &body))

	header := &ContainerHeader{
		ByteSize:   int32(body.Len()),
		Alignment:  AlignmentContext{ReferenceContext: SingleRefContext(0)},
		BlockCount: 1,
	}
	var buf bytes.Buffer
	require.NoError(t, header.Write(3, &buf))
	buf.Write(body.Bytes())

	_, err := ReadFileHeaderContainer(3, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a file header")
}

func TestFileHeaderDeclaredLengthBounds(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 8)
	payload[0] = 0xff // declares far more text than the block holds
	payload[1] = 0xff
	block, err := NewRawBlock(FileHeaderContent, NoContentID, payload)
	require.NoError(t, err)
	require.NoError(t, block.Compress(rawCodec{}))
	var body bytes.Buffer
	require.NoError(t, block.Write(3, &body))

	header := &ContainerHeader{
		ByteSize:   int32(body.Len()),
		Alignment:  AlignmentContext{ReferenceContext: SingleRefContext(0)},
		BlockCount: 1,
	}
	var buf bytes.Buffer
	require.NoError(t, header.Write(3, &buf))
	buf.Write(body.Bytes())

	_, err = ReadFileHeaderContainer(3, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares")
}
