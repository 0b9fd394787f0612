package cramio

import (
	"encoding/binary"
	"io"
)

// WriteInt32 writes v to w as 4 little-endian bytes.
func WriteInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadInt32 reads 4 little-endian bytes from r as an int32.
func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, eofToUnexpected(err)
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// ReadFull reads exactly len(buf) bytes, mapping a bare EOF mid-read to
// io.ErrUnexpectedEOF.
func ReadFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return eofToUnexpected(err)
}
