// Package rans implements the rANS 4x8 entropy codec used for CRAM external
// blocks: four interleaved range-coder states with 8-bit renormalization,
// symbol frequencies normalized to a 4096 total, and run-length-encoded
// frequency tables. Both order-0 and order-1 (previous byte as context)
// models are supported.
package rans

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Order selects the frequency model.
type Order int

const (
	// Order0 models each byte independently.
	Order0 Order = 0
	// Order1 conditions each byte on its predecessor.
	Order1 Order = 1
)

const (
	numSymbols     = 256
	totalFreqShift = 12
	totalFreq      = 1 << totalFreqShift // 4096
	lowerBound     = 1 << 23

	// prefix: order byte + compressed size (int32 LE) + raw size (int32 LE)
	prefixLen = 1 + 4 + 4

	// streams shorter than this lack the symbol context needed for order-1
	minOrder1Size = 4
)

// Codec holds the frequency and lookup tables for one encoder/decoder pair.
// The order-1 tables are large (roughly a megabyte), which is why callers are
// expected to obtain codecs through the compressor cache and reuse them. A
// Codec is not safe for concurrent use.
type Codec struct {
	encSyms [numSymbols][numSymbols]encSymbol
	dec     [numSymbols]decContext
}

type encSymbol struct {
	start uint32
	freq  uint32
}

type decSymbol struct {
	start uint32
	freq  uint32
}

type decContext struct {
	freqs         [numSymbols]uint32
	syms          [numSymbols]decSymbol
	reverseLookup [totalFreq]byte
}

// New returns a Codec with freshly allocated tables.
func New() *Codec {
	return &Codec{}
}

// Compress encodes data with the requested order and returns a stream whose
// 9-byte prefix records the order, the compressed payload size and the raw
// size. Inputs shorter than four bytes are always encoded order-0.
func (c *Codec) Compress(data []byte, order Order) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	if order == Order1 && len(data) >= minOrder1Size {
		return c.compressOrder1(data), nil
	}
	if order != Order0 && order != Order1 {
		return nil, fmt.Errorf("unknown rANS order: %d", order)
	}
	return c.compressOrder0(data), nil
}

// Uncompress decodes a stream produced by Compress.
func (c *Codec) Uncompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	if len(data) < prefixLen {
		return nil, errors.New("rANS stream shorter than prefix")
	}
	order := Order(data[0])
	compressedSize := int(int32(binary.LittleEndian.Uint32(data[1:5])))
	rawSize := int(int32(binary.LittleEndian.Uint32(data[5:9])))
	if compressedSize != len(data)-prefixLen {
		return nil, fmt.Errorf("rANS compressed size %d does not match remaining stream length %d",
			compressedSize, len(data)-prefixLen)
	}
	if rawSize < 0 {
		return nil, fmt.Errorf("negative rANS raw size %d", rawSize)
	}
	out := make([]byte, rawSize)
	body := data[prefixLen:]
	switch order {
	case Order0:
		if err := c.uncompressOrder0(body, out); err != nil {
			return nil, err
		}
	case Order1:
		if err := c.uncompressOrder1(body, out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown rANS order byte: %d", data[0])
	}
	return out, nil
}

func (s encSymbol) put(r uint32, out *[]byte) uint32 {
	xMax := ((lowerBound >> totalFreqShift) << 8) * s.freq
	for r >= xMax {
		*out = append(*out, byte(r))
		r >>= 8
	}
	return ((r / s.freq) << totalFreqShift) + r%s.freq + s.start
}

// advance consumes the symbol from the state without renormalizing.
func (s decSymbol) advance(r uint32) uint32 {
	return s.freq*(r>>totalFreqShift) + (r & (totalFreq - 1)) - s.start
}

func renorm(r uint32, body []byte, pos *int) uint32 {
	for r < lowerBound {
		r = r<<8 | uint32(body[*pos])
		*pos++
	}
	return r
}

func (c *Codec) compressOrder0(data []byte) []byte {
	freqs := calcFrequenciesOrder0(data)
	c.buildEncSymbolsOrder0(freqs)
	syms := &c.encSyms[0]

	body := writeFrequenciesOrder0(nil, freqs)

	blob := make([]byte, 0, len(data)+16)
	var r0, r1, r2, r3 uint32 = lowerBound, lowerBound, lowerBound, lowerBound

	n := len(data)
	switch i := n & 3; i {
	case 3:
		r2 = syms[data[n-(i-2)]].put(r2, &blob)
		r1 = syms[data[n-(i-1)]].put(r1, &blob)
		r0 = syms[data[n-i]].put(r0, &blob)
	case 2:
		r1 = syms[data[n-(i-1)]].put(r1, &blob)
		r0 = syms[data[n-i]].put(r0, &blob)
	case 1:
		r0 = syms[data[n-i]].put(r0, &blob)
	}
	for i := n &^ 3; i > 0; i -= 4 {
		r3 = syms[data[i-1]].put(r3, &blob)
		r2 = syms[data[i-2]].put(r2, &blob)
		r1 = syms[data[i-3]].put(r1, &blob)
		r0 = syms[data[i-4]].put(r0, &blob)
	}
	blob = appendStatesBE(blob, r3, r2, r1, r0)
	reverseBytes(blob)

	return prependPrefix(Order0, len(data), append(body, blob...))
}

func (c *Codec) compressOrder1(data []byte) []byte {
	freqs := calcFrequenciesOrder1(data)
	c.buildEncSymbolsOrder1(freqs)

	body := writeFrequenciesOrder1(nil, freqs)

	blob := make([]byte, 0, len(data)+16)
	var r0, r1, r2, r3 uint32 = lowerBound, lowerBound, lowerBound, lowerBound

	n := len(data)
	quarter := n >> 2
	i0 := quarter - 2
	i1 := 2*quarter - 2
	i2 := 3*quarter - 2

	var l0, l1, l2 byte
	if i0+1 >= 0 {
		l0 = data[i0+1]
	}
	if i1+1 >= 0 {
		l1 = data[i1+1]
	}
	if i2+1 >= 0 {
		l2 = data[i2+1]
	}
	l3 := data[n-1]

	// the fourth state also covers the remainder bytes past 4*quarter
	i3 := n - 2
	for ; i3 > 4*quarter-2 && i3 >= 0; i3-- {
		c3 := data[i3]
		r3 = c.encSyms[c3][l3].put(r3, &blob)
		l3 = c3
	}

	for ; i0 >= 0; i0, i1, i2, i3 = i0-1, i1-1, i2-1, i3-1 {
		c0, c1, c2, c3 := data[i0], data[i1], data[i2], data[i3]
		r3 = c.encSyms[c3][l3].put(r3, &blob)
		r2 = c.encSyms[c2][l2].put(r2, &blob)
		r1 = c.encSyms[c1][l1].put(r1, &blob)
		r0 = c.encSyms[c0][l0].put(r0, &blob)
		l0, l1, l2, l3 = c0, c1, c2, c3
	}

	// close each state with the zero context
	r3 = c.encSyms[0][l3].put(r3, &blob)
	r2 = c.encSyms[0][l2].put(r2, &blob)
	r1 = c.encSyms[0][l1].put(r1, &blob)
	r0 = c.encSyms[0][l0].put(r0, &blob)

	blob = appendStatesBE(blob, r3, r2, r1, r0)
	reverseBytes(blob)

	return prependPrefix(Order1, len(data), append(body, blob...))
}

func appendStatesBE(blob []byte, states ...uint32) []byte {
	for _, s := range states {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], s)
		blob = append(blob, buf[:]...)
	}
	return blob
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func prependPrefix(order Order, rawSize int, body []byte) []byte {
	out := make([]byte, prefixLen+len(body))
	out[0] = byte(order)
	binary.LittleEndian.PutUint32(out[1:5], uint32(len(body)))
	binary.LittleEndian.PutUint32(out[5:9], uint32(rawSize))
	copy(out[prefixLen:], body)
	return out
}

func (c *Codec) uncompressOrder0(body []byte, out []byte) error {
	pos := 0
	if err := c.readStatsOrder0(body, &pos); err != nil {
		return err
	}
	if len(body)-pos < 16 {
		return errors.New("truncated rANS order-0 stream")
	}
	r0 := binary.LittleEndian.Uint32(body[pos:])
	r1 := binary.LittleEndian.Uint32(body[pos+4:])
	r2 := binary.LittleEndian.Uint32(body[pos+8:])
	r3 := binary.LittleEndian.Uint32(body[pos+12:])
	pos += 16

	d := &c.dec[0]
	outEnd := len(out) &^ 3
	for i := 0; i < outEnd; i += 4 {
		c0 := d.reverseLookup[r0&(totalFreq-1)]
		c1 := d.reverseLookup[r1&(totalFreq-1)]
		c2 := d.reverseLookup[r2&(totalFreq-1)]
		c3 := d.reverseLookup[r3&(totalFreq-1)]
		out[i], out[i+1], out[i+2], out[i+3] = c0, c1, c2, c3

		r0 = d.syms[c0].advance(r0)
		r1 = d.syms[c1].advance(r1)
		r2 = d.syms[c2].advance(r2)
		r3 = d.syms[c3].advance(r3)

		r0 = renorm(r0, body, &pos)
		r1 = renorm(r1, body, &pos)
		r2 = renorm(r2, body, &pos)
		r3 = renorm(r3, body, &pos)
	}

	states := [3]*uint32{&r0, &r1, &r2}
	for i := outEnd; i < len(out); i++ {
		r := states[i-outEnd]
		sym := d.reverseLookup[*r&(totalFreq-1)]
		out[i] = sym
		*r = renorm(d.syms[sym].advance(*r), body, &pos)
	}
	return nil
}

func (c *Codec) uncompressOrder1(body []byte, out []byte) error {
	pos := 0
	if err := c.readStatsOrder1(body, &pos); err != nil {
		return err
	}
	if len(body)-pos < 16 {
		return errors.New("truncated rANS order-1 stream")
	}
	r0 := binary.LittleEndian.Uint32(body[pos:])
	r1 := binary.LittleEndian.Uint32(body[pos+4:])
	r2 := binary.LittleEndian.Uint32(body[pos+8:])
	r3 := binary.LittleEndian.Uint32(body[pos+12:])
	pos += 16

	n := len(out)
	quarter := n >> 2
	i0, i1, i2, i3 := 0, quarter, 2*quarter, 3*quarter
	var l0, l1, l2, l3 byte
	for ; i0 < quarter; i0, i1, i2, i3 = i0+1, i1+1, i2+1, i3+1 {
		c0 := c.dec[l0].reverseLookup[r0&(totalFreq-1)]
		c1 := c.dec[l1].reverseLookup[r1&(totalFreq-1)]
		c2 := c.dec[l2].reverseLookup[r2&(totalFreq-1)]
		c3 := c.dec[l3].reverseLookup[r3&(totalFreq-1)]
		out[i0], out[i1], out[i2], out[i3] = c0, c1, c2, c3

		r0 = renorm(c.dec[l0].syms[c0].advance(r0), body, &pos)
		r1 = renorm(c.dec[l1].syms[c1].advance(r1), body, &pos)
		r2 = renorm(c.dec[l2].syms[c2].advance(r2), body, &pos)
		r3 = renorm(c.dec[l3].syms[c3].advance(r3), body, &pos)

		l0, l1, l2, l3 = c0, c1, c2, c3
	}

	// remainder rides on the fourth state
	for ; i3 < n; i3++ {
		c3 := c.dec[l3].reverseLookup[r3&(totalFreq-1)]
		out[i3] = c3
		r3 = renorm(c.dec[l3].syms[c3].advance(r3), body, &pos)
		l3 = c3
	}
	return nil
}

func (c *Codec) buildEncSymbolsOrder0(freqs *[numSymbols]uint32) {
	var start uint32
	for s := 0; s < numSymbols; s++ {
		c.encSyms[0][s] = encSymbol{start: start, freq: freqs[s]}
		start += freqs[s]
	}
}

// encSyms is indexed [context][symbol] in both orders; order-0 uses the
// zero context row only.
func (c *Codec) buildEncSymbolsOrder1(freqs *[numSymbols][numSymbols]uint32) {
	for ctx := 0; ctx < numSymbols; ctx++ {
		var start uint32
		for s := 0; s < numSymbols; s++ {
			c.encSyms[ctx][s] = encSymbol{start: start, freq: freqs[ctx][s]}
			start += freqs[ctx][s]
		}
	}
}
