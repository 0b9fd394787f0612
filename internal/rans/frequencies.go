package rans

import "errors"

// calcFrequenciesOrder0 counts byte frequencies and normalizes them so they
// sum to exactly totalFreq, keeping every observed symbol at frequency >= 1.
func calcFrequenciesOrder0(data []byte) *[numSymbols]uint32 {
	var counts [numSymbols]int
	for _, b := range data {
		counts[b]++
	}

	// symbol with the maximum count absorbs the rounding error
	maxSym, maxCount := 0, 0
	for s, n := range counts {
		if n > maxCount {
			maxCount = n
			maxSym = s
		}
	}

	total := len(data)
	scale := (int64(totalFreq)<<31)/int64(total) + (1<<30)/int64(total)
	var freqs [numSymbols]uint32
	sum := 0
	for s, n := range counts {
		if n == 0 {
			continue
		}
		f := int((int64(n) * scale) >> 31)
		if f == 0 {
			f = 1
		}
		freqs[s] = uint32(f)
		sum += f
	}

	if sum < totalFreq {
		freqs[maxSym] += uint32(totalFreq - sum)
	} else {
		freqs[maxSym] -= uint32(sum - totalFreq)
	}
	return &freqs
}

// calcFrequenciesOrder1 counts byte frequencies conditioned on the previous
// byte and normalizes each context to totalFreq. The first byte of each of
// the four interleaved quarters is counted under the zero context, since
// that is the context the encoder closes each state with.
func calcFrequenciesOrder1(data []byte) *[numSymbols][numSymbols]uint32 {
	var counts [numSymbols][numSymbols]int
	var totals [numSymbols]int
	last := 0
	for _, b := range data {
		counts[last][b]++
		totals[last]++
		last = int(b)
	}
	quarter := len(data) >> 2
	counts[0][data[quarter]]++
	counts[0][data[2*quarter]]++
	counts[0][data[3*quarter]]++
	totals[0] += 3

	var freqs [numSymbols][numSymbols]uint32
	for ctx := 0; ctx < numSymbols; ctx++ {
		if totals[ctx] == 0 {
			continue
		}
		p := float64(totalFreq) / float64(totals[ctx])
		sum, maxSym, maxCount := 0, 0, 0
		for s, n := range counts[ctx] {
			if n == 0 {
				continue
			}
			if n > maxCount {
				maxCount = n
				maxSym = s
			}
			f := int(float64(n) * p)
			if f == 0 {
				f = 1
			}
			freqs[ctx][s] = uint32(f)
			sum += f
		}
		if sum < totalFreq {
			freqs[ctx][maxSym] += uint32(totalFreq - sum)
		} else {
			freqs[ctx][maxSym] -= uint32(sum - totalFreq)
		}
	}
	return &freqs
}

// writeFrequenciesOrder0 appends the RLE-compressed frequency table: for each
// run of symbols with non-zero frequency, the first symbol, a run length,
// then the frequencies (1 byte if < 128, else 2 bytes with the high bit set).
// A zero symbol byte terminates the table.
func writeFrequenciesOrder0(out []byte, freqs *[numSymbols]uint32) []byte {
	rle := 0
	for s := 0; s < numSymbols; s++ {
		f := freqs[s]
		if f == 0 {
			continue
		}
		if rle != 0 {
			rle--
		} else {
			out = append(out, byte(s))
			if s != 0 && freqs[s-1] != 0 {
				for rle = s + 1; rle < numSymbols && freqs[rle] != 0; rle++ {
				}
				rle -= s + 1
				out = append(out, byte(rle))
			}
		}
		out = appendFreq(out, f)
	}
	return append(out, 0)
}

func writeFrequenciesOrder1(out []byte, freqs *[numSymbols][numSymbols]uint32) []byte {
	var totals [numSymbols]uint32
	for ctx := 0; ctx < numSymbols; ctx++ {
		for s := 0; s < numSymbols; s++ {
			totals[ctx] += freqs[ctx][s]
		}
	}

	rleCtx := 0
	for ctx := 0; ctx < numSymbols; ctx++ {
		if totals[ctx] == 0 {
			continue
		}
		if rleCtx != 0 {
			rleCtx--
		} else {
			out = append(out, byte(ctx))
			if ctx != 0 && totals[ctx-1] != 0 {
				for rleCtx = ctx + 1; rleCtx < numSymbols && totals[rleCtx] != 0; rleCtx++ {
				}
				rleCtx -= ctx + 1
				out = append(out, byte(rleCtx))
			}
		}
		out = writeFrequenciesOrder0(out, &freqs[ctx])
	}
	return append(out, 0)
}

func appendFreq(out []byte, f uint32) []byte {
	if f < 128 {
		return append(out, byte(f))
	}
	return append(out, byte(128|f>>8), byte(f))
}

var errTruncatedFreqTable = errors.New("truncated rANS frequency table")

type freqReader struct {
	body []byte
	pos  *int
}

func (fr freqReader) next() (byte, error) {
	if *fr.pos >= len(fr.body) {
		return 0, errTruncatedFreqTable
	}
	b := fr.body[*fr.pos]
	*fr.pos++
	return b, nil
}

func (fr freqReader) peek() (byte, error) {
	if *fr.pos >= len(fr.body) {
		return 0, errTruncatedFreqTable
	}
	return fr.body[*fr.pos], nil
}

func (fr freqReader) readFreq() (uint32, error) {
	b, err := fr.next()
	if err != nil {
		return 0, err
	}
	f := uint32(b)
	if f >= 0x80 {
		lo, err := fr.next()
		if err != nil {
			return 0, err
		}
		f = (f&0x7F)<<8 | uint32(lo)
	}
	return f, nil
}

// readStatsOrder0 parses the frequency table into the zero decode context and
// builds its reverse symbol lookup.
func (c *Codec) readStatsOrder0(body []byte, pos *int) error {
	return c.readContextStats(freqReader{body: body, pos: pos}, &c.dec[0], false)
}

func (c *Codec) readStatsOrder1(body []byte, pos *int) error {
	fr := freqReader{body: body, pos: pos}
	rleCtx := 0
	b, err := fr.next()
	if err != nil {
		return err
	}
	ctx := int(b)
	for {
		if err := c.readContextStats(fr, &c.dec[ctx], true); err != nil {
			return err
		}
		peeked, err := fr.peek()
		if err != nil {
			return err
		}
		if rleCtx == 0 && ctx+1 == int(peeked) {
			if b, err = fr.next(); err != nil {
				return err
			}
			ctx = int(b)
			if b, err = fr.next(); err != nil {
				return err
			}
			rleCtx = int(b)
		} else if rleCtx != 0 {
			rleCtx--
			ctx++
		} else {
			if b, err = fr.next(); err != nil {
				return err
			}
			ctx = int(b)
		}
		if ctx == 0 {
			return nil
		}
	}
}

// readContextStats parses one context's RLE frequency run and populates the
// decoding symbols and reverse lookup for that context. The order-1 table
// replaces a zero frequency with totalFreq, matching the reference decoder.
func (c *Codec) readContextStats(fr freqReader, d *decContext, order1 bool) error {
	*d = decContext{}
	rle := 0
	var cum uint32
	b, err := fr.next()
	if err != nil {
		return err
	}
	sym := int(b)
	for {
		f, err := fr.readFreq()
		if err != nil {
			return err
		}
		if order1 && f == 0 {
			f = totalFreq
		}
		if cum+f > totalFreq {
			return errors.New("rANS frequency table overflows total")
		}
		d.freqs[sym] = f
		d.syms[sym] = decSymbol{start: cum, freq: f}
		for i := cum; i < cum+f; i++ {
			d.reverseLookup[i] = byte(sym)
		}
		cum += f

		peeked, err := fr.peek()
		if err != nil {
			return err
		}
		if rle == 0 && sym+1 == int(peeked) {
			if b, err = fr.next(); err != nil {
				return err
			}
			sym = int(b)
			if b, err = fr.next(); err != nil {
				return err
			}
			rle = int(b)
		} else if rle != 0 {
			rle--
			sym++
		} else {
			if b, err = fr.next(); err != nil {
				return err
			}
			sym = int(b)
		}
		if sym == 0 {
			return nil
		}
	}
}
