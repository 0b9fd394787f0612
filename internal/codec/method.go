// Package codec provides the external compression backends for block
// payloads: identity, gzip, bzip2, lzma and rANS, plus a cache that reuses
// compressor instances across blocks and worker goroutines.
package codec

import "fmt"

// Method identifies a block compression method by its wire value.
type Method byte

const (
	Raw   Method = 0
	Gzip  Method = 1
	BZip2 Method = 2
	LZMA  Method = 3
	RANS  Method = 4
)

// MethodFromByte maps a wire byte to a Method. An unknown value is a
// format error.
func MethodFromByte(b byte) (Method, error) {
	switch m := Method(b); m {
	case Raw, Gzip, BZip2, LZMA, RANS:
		return m, nil
	default:
		return 0, fmt.Errorf("unknown compression method byte: %d", b)
	}
}

func (m Method) String() string {
	switch m {
	case Raw:
		return "raw"
	case Gzip:
		return "gzip"
	case BZip2:
		return "bzip2"
	case LZMA:
		return "lzma"
	case RANS:
		return "rans"
	default:
		return fmt.Sprintf("method(%d)", byte(m))
	}
}
