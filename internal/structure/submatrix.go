package structure

import (
	"fmt"
	"sort"
)

// substitutionBases is the fixed base alphabet, in code-assignment order.
var substitutionBases = [5]byte{'A', 'C', 'G', 'T', 'N'}

// SubstitutionMatrixSize is the packed wire size: one byte per reference
// base, 2 bits per substitution code.
const SubstitutionMatrixSize = 5

// SubstitutionMatrix maps each (reference base, substituting base) pair over
// {A,C,G,T,N} to a 2-bit code and back. Codes are assigned per reference
// base by descending observed substitution frequency, ties broken in fixed
// A,C,G,T,N order. Lower-case bases alias the codes of their upper-case
// counterparts. Frozen once built.
type SubstitutionMatrix struct {
	codeByBase [256][256]byte
	baseByCode [256][4]byte
	packed     [SubstitutionMatrixSize]byte
}

// NewSubstitutionMatrix builds a matrix from a 5x5 frequency table indexed
// by substitutionBases order. Self-substitution cells are ignored.
func NewSubstitutionMatrix(freqs [5][5]int64) *SubstitutionMatrix {
	m := &SubstitutionMatrix{}
	m.fillDefaults()
	for ri := range substitutionBases {
		others := make([]int, 0, 4)
		for oi := range substitutionBases {
			if oi != ri {
				others = append(others, oi)
			}
		}
		sort.Slice(others, func(i, j int) bool {
			fi, fj := freqs[ri][others[i]], freqs[ri][others[j]]
			if fi != fj {
				return fi > fj
			}
			return others[i] < others[j]
		})
		for code, oi := range others {
			m.set(substitutionBases[ri], byte(code), substitutionBases[oi])
		}
		m.pack(ri)
	}
	return m
}

// ParseSubstitutionMatrix rebuilds a matrix from its 5-byte packed form.
func ParseSubstitutionMatrix(packed []byte) (*SubstitutionMatrix, error) {
	if len(packed) != SubstitutionMatrixSize {
		return nil, fmt.Errorf("substitution matrix must be %d bytes, got %d",
			SubstitutionMatrixSize, len(packed))
	}
	m := &SubstitutionMatrix{}
	m.fillDefaults()
	for ri, ref := range substitutionBases {
		b := packed[ri]
		shift := 6
		for oi, sub := range substitutionBases {
			if oi == ri {
				continue
			}
			code := b >> shift & 0x03
			m.set(ref, code, sub)
			shift -= 2
		}
		m.packed[ri] = b
	}
	return m, nil
}

// Code returns the 2-bit code for reading read where the reference holds ref.
func (m *SubstitutionMatrix) Code(ref, read byte) byte {
	return m.codeByBase[ref][read]
}

// Base returns the substituting base for a code against the given reference
// base. Code and Base are exact inverses over the base alphabet.
func (m *SubstitutionMatrix) Base(ref, code byte) byte {
	return m.baseByCode[ref][code&0x03]
}

// Bytes returns the packed wire form.
func (m *SubstitutionMatrix) Bytes() [SubstitutionMatrixSize]byte {
	return m.packed
}

func (m *SubstitutionMatrix) fillDefaults() {
	for r := range m.baseByCode {
		for c := range m.baseByCode[r] {
			m.baseByCode[r][c] = 'N'
		}
	}
}

func (m *SubstitutionMatrix) set(ref, code, sub byte) {
	for _, r := range [2]byte{ref, lowerBase(ref)} {
		m.codeByBase[r][sub] = code
		m.codeByBase[r][lowerBase(sub)] = code
		m.baseByCode[r][code] = sub
	}
}

// pack folds the codes of reference base ri into one byte, substituting
// bases in fixed order, first base in the two most significant bits.
func (m *SubstitutionMatrix) pack(ri int) {
	ref := substitutionBases[ri]
	var b byte
	for oi, sub := range substitutionBases {
		if oi == ri {
			continue
		}
		b = b<<2 | m.codeByBase[ref][sub]
	}
	m.packed[ri] = b
}

func lowerBase(b byte) byte { return b + ('a' - 'A') }
