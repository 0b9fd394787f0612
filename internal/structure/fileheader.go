package structure

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/karvela/crampack/internal/codec"
	"github.com/karvela/crampack/internal/cramio"
)

// minFileHeaderBlockSize pads the file header block so the text header can
// be rewritten in place later without reframing the stream.
const minFileHeaderBlockSize = 1024

// WriteFileHeaderContainer wraps the text file header in a gzip-compressed
// FILE_HEADER block inside its own sliceless container, the first container
// of a stream.
func WriteFileHeaderContainer(major int, text []byte, w io.Writer) error {
	size := len(text) + len(text)/2
	if size < minFileHeaderBlockSize {
		size = minFileHeaderBlockSize
	}
	payload := make([]byte, 4+size)
	binary.LittleEndian.PutUint32(payload[:4], uint32(len(text)))
	copy(payload[4:], text)

	block, err := NewRawBlock(FileHeaderContent, NoContentID, payload)
	if err != nil {
		return err
	}
	comp, err := codec.NewCache().Get(codec.Gzip, codec.NoArg)
	if err != nil {
		return err
	}
	if err := block.Compress(comp); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := block.Write(major, &body); err != nil {
		return err
	}

	header := &ContainerHeader{
		ByteSize: int32(body.Len()),
		Alignment: AlignmentContext{
			ReferenceContext: SingleRefContext(0),
		},
		BlockCount: 1,
	}
	if err := header.Write(major, w); err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}

// ReadFileHeaderContainer reads the leading file-header container and
// returns the text header it carries.
func ReadFileHeaderContainer(major int, r io.Reader) ([]byte, error) {
	header, err := ReadContainerHeader(major, r)
	if err != nil {
		return nil, err
	}
	if header.ByteSize < 0 {
		return nil, fmt.Errorf("negative container byte size: %d", header.ByteSize)
	}
	body := make([]byte, header.ByteSize)
	if err := cramio.ReadFull(r, body); err != nil {
		return nil, err
	}
	block, err := ReadBlock(major, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if block.ContentType() != FileHeaderContent {
		return nil, fmt.Errorf("stream starts with a %s block, expected a file header", block.ContentType())
	}
	if err := block.Uncompress(codec.NewCache()); err != nil {
		return nil, err
	}
	payload, err := block.RawContent()
	if err != nil {
		return nil, err
	}
	if len(payload) < 4 {
		return nil, fmt.Errorf("file header block too short: %d bytes", len(payload))
	}
	textLen := int(int32(binary.LittleEndian.Uint32(payload[:4])))
	if textLen < 0 || textLen > len(payload)-4 {
		return nil, fmt.Errorf("file header declares %d text bytes in a %d byte block",
			textLen, len(payload)-4)
	}
	return payload[4 : 4+textLen], nil
}
