// Package cramio provides the low-level integer codecs and checksum stream
// wrappers used by the CRAM container format: ITF8 (32-bit) and LTF8 (64-bit)
// variable-length integers, ITF8-prefixed integer arrays, little-endian int32,
// and CRC32-tracking reader/writer wrappers.
package cramio

import (
	"fmt"
	"io"
)

// ITF8 encodes a 32-bit integer in 1 to 5 bytes. The number of leading set
// bits in the first byte gives the number of continuation bytes; the 5-byte
// form shifts to 4-bit packing for the final byte.

// WriteITF8 writes v to w in ITF8 encoding and returns the number of bytes
// written.
func WriteITF8(w io.ByteWriter, v int32) (int, error) {
	u := uint32(v)
	switch {
	case u>>7 == 0:
		return 1, writeBytes(w, byte(u))
	case u>>14 == 0:
		return 2, writeBytes(w, byte(u>>8)|0x80, byte(u))
	case u>>21 == 0:
		return 3, writeBytes(w, byte(u>>16)|0xC0, byte(u>>8), byte(u))
	case u>>28 == 0:
		return 4, writeBytes(w, byte(u>>24)|0xE0, byte(u>>16), byte(u>>8), byte(u))
	default:
		return 5, writeBytes(w, byte(u>>28)|0xF0, byte(u>>20), byte(u>>12), byte(u>>4), byte(u))
	}
}

// ReadITF8 reads one ITF8-encoded integer from r.
func ReadITF8(r io.ByteReader) (int32, error) {
	b1, err := r.ReadByte()
	if err != nil {
		return 0, eofToUnexpected(err)
	}
	switch {
	case b1&0x80 == 0:
		return int32(b1), nil
	case b1&0x40 == 0:
		rest, err := readBytes(r, 1)
		if err != nil {
			return 0, err
		}
		return int32(b1&0x7F)<<8 | int32(rest[0]), nil
	case b1&0x20 == 0:
		rest, err := readBytes(r, 2)
		if err != nil {
			return 0, err
		}
		return int32(b1&0x3F)<<16 | int32(rest[0])<<8 | int32(rest[1]), nil
	case b1&0x10 == 0:
		rest, err := readBytes(r, 3)
		if err != nil {
			return 0, err
		}
		return int32(b1&0x1F)<<24 | int32(rest[0])<<16 | int32(rest[1])<<8 | int32(rest[2]), nil
	default:
		rest, err := readBytes(r, 4)
		if err != nil {
			return 0, err
		}
		return int32(b1&0x0F)<<28 | int32(rest[0])<<20 | int32(rest[1])<<12 |
			int32(rest[2])<<4 | int32(rest[3]&0x0F), nil
	}
}

// WriteLTF8 writes v to w in LTF8 encoding (1 to 9 bytes) and returns the
// number of bytes written.
func WriteLTF8(w io.ByteWriter, v int64) (int, error) {
	u := uint64(v)
	switch {
	case u>>7 == 0:
		return 1, writeBytes(w, byte(u))
	case u>>14 == 0:
		return 2, writeBytes(w, byte(u>>8)|0x80, byte(u))
	case u>>21 == 0:
		return 3, writeBytes(w, byte(u>>16)|0xC0, byte(u>>8), byte(u))
	case u>>28 == 0:
		return 4, writeBytes(w, byte(u>>24)|0xE0, byte(u>>16), byte(u>>8), byte(u))
	case u>>35 == 0:
		return 5, writeBytes(w, byte(u>>32)|0xF0, byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case u>>42 == 0:
		return 6, writeBytes(w, byte(u>>40)|0xF8, byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case u>>49 == 0:
		return 7, writeBytes(w, byte(u>>48)|0xFC, byte(u>>40), byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	case u>>56 == 0:
		return 8, writeBytes(w, byte(u>>56)|0xFE, byte(u>>48), byte(u>>40), byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	default:
		return 9, writeBytes(w, 0xFF, byte(u>>56), byte(u>>48), byte(u>>40), byte(u>>32), byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
	}
}

// ReadLTF8 reads one LTF8-encoded integer from r.
func ReadLTF8(r io.ByteReader) (int64, error) {
	b1, err := r.ReadByte()
	if err != nil {
		return 0, eofToUnexpected(err)
	}
	// count leading ones in the control byte
	n := 0
	for mask := byte(0x80); mask != 0 && b1&mask != 0; mask >>= 1 {
		n++
	}
	rest, err := readBytes(r, n)
	if err != nil {
		return 0, err
	}
	var v int64
	if n < 8 {
		v = int64(b1 & (0x7F >> n))
	}
	for _, b := range rest {
		v = v<<8 | int64(b)
	}
	return v, nil
}

// WriteITF8Array writes an ITF8 length prefix followed by each element in
// ITF8 encoding. Returns the number of bytes written.
func WriteITF8Array(w io.ByteWriter, values []int32) (int, error) {
	total, err := WriteITF8(w, int32(len(values)))
	if err != nil {
		return total, err
	}
	for _, v := range values {
		n, err := WriteITF8(w, v)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadITF8Array reads an ITF8 length prefix followed by that many ITF8 values.
func ReadITF8Array(r io.ByteReader) ([]int32, error) {
	n, err := ReadITF8(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("negative array length %d", n)
	}
	values := make([]int32, n)
	for i := range values {
		if values[i], err = ReadITF8(r); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func writeBytes(w io.ByteWriter, bytes ...byte) error {
	for _, b := range bytes {
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

func readBytes(r io.ByteReader, n int) ([]byte, error) {
	buf := make([]byte, n)
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return nil, eofToUnexpected(err)
		}
		buf[i] = b
	}
	return buf, nil
}

// EOFToUnexpected maps a bare io.EOF to io.ErrUnexpectedEOF, for reads that
// occur mid-structure where a clean end of stream is still a truncation.
func EOFToUnexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func eofToUnexpected(err error) error { return EOFToUnexpected(err) }
