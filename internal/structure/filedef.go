package structure

import (
	"bytes"
	"fmt"
	"io"

	"github.com/karvela/crampack/internal/cramio"
)

var fileMagic = []byte{'C', 'R', 'A', 'M'}

// FileIDLength is the fixed size of the file identifier field.
const FileIDLength = 20

// FileDefinition is the fixed 26-byte stream preamble: magic, format
// version, and a caller-chosen file identifier padded with zero bytes.
type FileDefinition struct {
	Major byte
	Minor byte
	ID    [FileIDLength]byte
}

// NewFileDefinition builds a definition for the given version. An id longer
// than FileIDLength is truncated.
func NewFileDefinition(major, minor byte, id string) FileDefinition {
	fd := FileDefinition{Major: major, Minor: minor}
	copy(fd.ID[:], id)
	return fd
}

// Write frames the definition.
func (fd FileDefinition) Write(w io.Writer) error {
	var buf bytes.Buffer
	buf.Write(fileMagic)
	buf.WriteByte(fd.Major)
	buf.WriteByte(fd.Minor)
	buf.Write(fd.ID[:])
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadFileDefinition parses the stream preamble. A wrong magic is a fatal
// format error.
func ReadFileDefinition(r io.Reader) (FileDefinition, error) {
	var buf [4 + 2 + FileIDLength]byte
	if err := cramio.ReadFull(r, buf[:]); err != nil {
		return FileDefinition{}, err
	}
	if !bytes.Equal(buf[:4], fileMagic) {
		return FileDefinition{}, fmt.Errorf("not a CRAM stream: bad magic %q", buf[:4])
	}
	fd := FileDefinition{Major: buf[4], Minor: buf[5]}
	copy(fd.ID[:], buf[6:])
	return fd, nil
}
