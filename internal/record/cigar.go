package record

import (
	"fmt"
	"strconv"
	"strings"
)

// CigarOp is one alignment operator character.
type CigarOp byte

const (
	CigarMatch    CigarOp = 'M'
	CigarInsert   CigarOp = 'I'
	CigarDelete   CigarOp = 'D'
	CigarSkip     CigarOp = 'N'
	CigarSoftClip CigarOp = 'S'
	CigarHardClip CigarOp = 'H'
	CigarPadding  CigarOp = 'P'
	CigarEqual    CigarOp = '='
	CigarMismatch CigarOp = 'X'
)

// ConsumesReadBases reports whether the operator advances the read cursor.
func (op CigarOp) ConsumesReadBases() bool {
	switch op {
	case CigarMatch, CigarInsert, CigarSoftClip, CigarEqual, CigarMismatch:
		return true
	default:
		return false
	}
}

// ConsumesReferenceBases reports whether the operator advances the
// reference cursor.
func (op CigarOp) ConsumesReferenceBases() bool {
	switch op {
	case CigarMatch, CigarDelete, CigarSkip, CigarEqual, CigarMismatch:
		return true
	default:
		return false
	}
}

// CigarElement is one run of a single alignment operator.
type CigarElement struct {
	Length int32
	Op     CigarOp
}

// ReadLengthFromCigar totals the read bases the elements consume.
func ReadLengthFromCigar(cigar []CigarElement) int32 {
	var n int32
	for _, e := range cigar {
		if e.Op.ConsumesReadBases() {
			n += e.Length
		}
	}
	return n
}

// ParseCigar parses a text operation string such as "10M1I5M".
func ParseCigar(s string) ([]CigarElement, error) {
	if s == "" || s == "*" {
		return nil, nil
	}
	var cigar []CigarElement
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			continue
		}
		if i == start {
			return nil, fmt.Errorf("cigar %q: operator %q has no length", s, s[i])
		}
		n, err := strconv.Atoi(s[start:i])
		if err != nil {
			return nil, fmt.Errorf("cigar %q: %w", s, err)
		}
		op := CigarOp(s[i])
		switch op {
		case CigarMatch, CigarInsert, CigarDelete, CigarSkip, CigarSoftClip,
			CigarHardClip, CigarPadding, CigarEqual, CigarMismatch:
		default:
			return nil, fmt.Errorf("cigar %q: unknown operator %q", s, s[i])
		}
		cigar = append(cigar, CigarElement{Length: int32(n), Op: op})
		start = i + 1
	}
	if start != len(s) {
		return nil, fmt.Errorf("cigar %q: trailing length without operator", s)
	}
	return cigar, nil
}

// FormatCigar renders elements back to the text form.
func FormatCigar(cigar []CigarElement) string {
	if len(cigar) == 0 {
		return "*"
	}
	var sb strings.Builder
	for _, e := range cigar {
		sb.WriteString(strconv.Itoa(int(e.Length)))
		sb.WriteByte(byte(e.Op))
	}
	return sb.String()
}
