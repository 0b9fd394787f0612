package structure

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karvela/crampack/internal/codec"
)

func TestBlockRoundTrip(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("ACGTN"), 200)

	tests := []struct {
		name   string
		major  int
		method codec.Method
		arg    int
	}{
		{name: "v2 raw", major: 2, method: codec.Raw, arg: codec.NoArg},
		{name: "v3 raw", major: 3, method: codec.Raw, arg: codec.NoArg},
		{name: "v3 gzip", major: 3, method: codec.Gzip, arg: codec.NoArg},
		{name: "v3 rans order1", major: 3, method: codec.RANS, arg: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cache := codec.NewCache()
			block := NewExternalBlock(7, data)
			comp, err := cache.Get(tt.method, tt.arg)
			require.NoError(t, err)
			require.NoError(t, block.Compress(comp))

			var buf bytes.Buffer
			require.NoError(t, block.Write(tt.major, &buf))

			got, err := ReadBlock(tt.major, &buf)
			require.NoError(t, err)
			assert.Equal(t, tt.method, got.Method())
			assert.Equal(t, ExternalContent, got.ContentType())
			assert.Equal(t, int32(7), got.ContentID())
			assert.Equal(t, len(data), got.RawSize())

			require.NoError(t, got.Uncompress(cache))
			raw, err := got.RawContent()
			require.NoError(t, err)
			assert.Equal(t, data, raw)
		})
	}
}

func TestBlockChecksumMismatch(t *testing.T) {
	t.Parallel()

	block := NewCoreBlock([]byte("core bits"))
	comp, err := codec.NewCache().Get(codec.Raw, codec.NoArg)
	require.NoError(t, err)
	require.NoError(t, block.Compress(comp))

	var buf bytes.Buffer
	require.NoError(t, block.Write(3, &buf))

	// flip one payload byte ahead of the trailer
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-6] ^= 0x01

	_, err = ReadBlock(3, bytes.NewReader(corrupted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestBlockV2HasNoChecksum(t *testing.T) {
	t.Parallel()

	block := NewCoreBlock([]byte("core bits"))
	comp, err := codec.NewCache().Get(codec.Raw, codec.NoArg)
	require.NoError(t, err)
	require.NoError(t, block.Compress(comp))

	var v2, v3 bytes.Buffer
	require.NoError(t, block.Write(2, &v2))
	require.NoError(t, block.Write(3, &v3))
	assert.Equal(t, v2.Len()+4, v3.Len())
}

func TestBlockContentIDValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRawBlock(CoreContent, 5, []byte("x"))
	assert.Error(t, err)

	_, err = NewRawBlock(ExternalContent, 5, []byte("x"))
	assert.NoError(t, err)
}

func TestBlockStateTransitions(t *testing.T) {
	t.Parallel()

	cache := codec.NewCache()
	block := NewExternalBlock(1, []byte("payload"))
	assert.True(t, block.HasRaw())
	assert.False(t, block.HasCompressed())

	_, err := block.CompressedContent()
	assert.Error(t, err)

	comp, err := cache.Get(codec.Gzip, codec.NoArg)
	require.NoError(t, err)
	require.NoError(t, block.Compress(comp))
	assert.True(t, block.HasCompressed())

	// compressing again is a no-op
	first, err := block.CompressedContent()
	require.NoError(t, err)
	require.NoError(t, block.Compress(comp))
	second, err := block.CompressedContent()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReadBlockRejectsUnknownBytes(t *testing.T) {
	t.Parallel()

	// method byte 99
	_, err := ReadBlock(2, bytes.NewReader([]byte{99, 4, 0, 0, 0}))
	assert.Error(t, err)

	// content type byte 3 is reserved
	_, err = ReadBlock(2, bytes.NewReader([]byte{0, 3, 0, 0, 0}))
	assert.Error(t, err)
}

func TestReadBlockTruncated(t *testing.T) {
	t.Parallel()

	block := NewCoreBlock([]byte("core bits"))
	comp, err := codec.NewCache().Get(codec.Raw, codec.NoArg)
	require.NoError(t, err)
	require.NoError(t, block.Compress(comp))

	var buf bytes.Buffer
	require.NoError(t, block.Write(3, &buf))

	_, err = ReadBlock(3, bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	assert.Error(t, err)
}
