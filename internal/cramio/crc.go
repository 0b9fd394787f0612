package cramio

import (
	"hash/crc32"
	"io"
)

// CRCWriter wraps an io.Writer and maintains a running IEEE CRC32 of all
// bytes written through it.
type CRCWriter struct {
	w   io.Writer
	crc uint32
}

// NewCRCWriter returns a CRCWriter wrapping w.
func NewCRCWriter(w io.Writer) *CRCWriter {
	return &CRCWriter{w: w}
}

func (c *CRCWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.crc = crc32.Update(c.crc, crc32.IEEETable, p[:n])
	return n, err
}

func (c *CRCWriter) WriteByte(b byte) error {
	_, err := c.Write([]byte{b})
	return err
}

// Sum32 returns the CRC32 of everything written so far.
func (c *CRCWriter) Sum32() uint32 { return c.crc }

// SumLE returns the running CRC32 as 4 little-endian bytes, the form in
// which CRAM stores checksum trailers.
func (c *CRCWriter) SumLE() [4]byte {
	s := c.crc
	return [4]byte{byte(s), byte(s >> 8), byte(s >> 16), byte(s >> 24)}
}

// CRCReader wraps an io.Reader and maintains a running IEEE CRC32 of all
// bytes read through it.
type CRCReader struct {
	r   io.Reader
	crc uint32
}

// NewCRCReader returns a CRCReader wrapping r.
func NewCRCReader(r io.Reader) *CRCReader {
	return &CRCReader{r: r}
}

func (c *CRCReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.crc = crc32.Update(c.crc, crc32.IEEETable, p[:n])
	return n, err
}

func (c *CRCReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(c, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Sum32 returns the CRC32 of everything read so far.
func (c *CRCReader) Sum32() uint32 { return c.crc }

// ResetSum clears the running checksum without disturbing the stream.
func (c *CRCReader) ResetSum() { c.crc = 0 }
