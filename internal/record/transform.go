package record

import (
	"fmt"

	"github.com/karvela/crampack/internal/structure"
)

// ToFeatures walks the alignment operators left to right and emits the
// feature list for one record. refBases covers the whole reference
// sequence; alignmentStart is 1-based. A reference position beyond the
// available bases compares as 'N'. Read and reference bases are compared
// in upper case.
func ToFeatures(cigar []CigarElement, alignmentStart int32, bases, qualities, refBases []byte) ([]ReadFeature, error) {
	var features []ReadFeature

	readLen := ReadLengthFromCigar(cigar)
	if bases == nil {
		// records with unknown sequence compare as all 'N'
		bases = make([]byte, readLen)
		for i := range bases {
			bases[i] = 'N'
		}
	}
	if int32(len(bases)) != readLen {
		return nil, fmt.Errorf("cigar consumes %d read bases but record has %d", readLen, len(bases))
	}

	var posInRead int32  // zero-based read offset
	var refOffset int32  // offset from alignment start
	for _, e := range cigar {
		switch e.Op {
		case CigarDelete:
			features = append(features, Deletion{Pos: posInRead + 1, Length: e.Length})
		case CigarSkip:
			features = append(features, RefSkip{Pos: posInRead + 1, Length: e.Length})
		case CigarPadding:
			features = append(features, Padding{Pos: posInRead + 1, Length: e.Length})
		case CigarHardClip:
			features = append(features, HardClip{Pos: posInRead + 1, Length: e.Length})
		case CigarSoftClip:
			clipped := append([]byte(nil), bases[posInRead:posInRead+e.Length]...)
			features = append(features, SoftClip{Pos: posInRead + 1, Bases: clipped})
		case CigarInsert:
			// one InsertBase per base, a multi-base Insertion would need a
			// variable-length sub-encoding
			for i := int32(0); i < e.Length; i++ {
				features = append(features, InsertBase{Pos: posInRead + 1 + i, Base: bases[posInRead+i]})
			}
		case CigarMatch, CigarEqual, CigarMismatch:
			features = appendMismatches(features, refBases, alignmentStart, posInRead, refOffset, e.Length, bases, qualities)
		default:
			return nil, fmt.Errorf("unsupported cigar operator %q", byte(e.Op))
		}
		if e.Op.ConsumesReadBases() {
			posInRead += e.Length
		}
		if e.Op.ConsumesReferenceBases() {
			refOffset += e.Length
		}
	}
	return features, nil
}

// appendMismatches compares one match/mismatch stretch against the
// reference base by base: a matching base emits nothing, an ACGTN mismatch
// emits a Substitution, anything else a ReadBase with its quality.
func appendMismatches(features []ReadFeature, refBases []byte, alignmentStart, fromPosInRead, refOffset, length int32, bases, qualities []byte) []ReadFeature {
	oneBasedPosInRead := fromPosInRead + 1
	refIndex := alignmentStart + refOffset - 1

	for i := int32(0); i < length; i++ {
		refBase := byte('N')
		if int(refIndex) < len(refBases) {
			refBase = refBases[refIndex]
		}
		readBase := upperBase(bases[fromPosInRead+i])
		refBase = upperBase(refBase)

		if readBase != refBase {
			if isUpperACGTN(readBase) && isUpperACGTN(refBase) {
				features = append(features, Substitution{
					Pos:     oneBasedPosInRead,
					Base:    readBase,
					RefBase: refBase,
					Code:    NoSubstitutionCode,
				})
			} else {
				quality := MissingQualityScore
				if int(fromPosInRead+i) < len(qualities) {
					quality = qualities[fromPosInRead+i]
				}
				features = append(features, ReadBase{
					Pos:     oneBasedPosInRead,
					Base:    readBase,
					Quality: quality,
				})
			}
		}
		oneBasedPosInRead++
		refIndex++
	}
	return features
}

// RestoreReadBases rebuilds the read bases from a feature list: the gaps
// between features are copied from the reference, substitutions resolve
// through the matrix, stored literals are copied verbatim, and ReadBase
// features overwrite in a final pass. Returns the empty sentinel for
// records flagged as having unknown bases. Output is upper case.
func RestoreReadBases(
	features []ReadFeature,
	unknownBases bool,
	alignmentStart, readLength int32,
	refBases []byte,
	refOffset int32,
	matrix *structure.SubstitutionMatrix,
) []byte {
	if unknownBases || readLength == 0 {
		return nil
	}
	bases := make([]byte, readLength)

	posInRead := int32(1)
	zeroBasedStart := alignmentStart - 1
	var posInSeq int32

	refAt := func(offset int32) byte {
		p := zeroBasedStart + offset - refOffset
		if p < 0 || int(p) >= len(refBases) {
			return 'N'
		}
		return refBases[p]
	}

	for _, f := range features {
		for ; posInRead < f.Position(); posInRead++ {
			bases[posInRead-1] = refAt(posInSeq)
			posInSeq++
		}
		switch v := f.(type) {
		case Substitution:
			refBase := upperBase(refAt(posInSeq))
			if !isUpperACGTN(refBase) {
				refBase = 'N'
			}
			code := v.Code
			if code == NoSubstitutionCode {
				code = matrix.Code(refBase, upperBase(v.Base))
			}
			bases[posInRead-1] = matrix.Base(refBase, code)
			posInRead++
			posInSeq++
		case Insertion:
			for _, b := range v.Bases {
				bases[posInRead-1] = b
				posInRead++
			}
		case SoftClip:
			for _, b := range v.Bases {
				bases[posInRead-1] = b
				posInRead++
			}
		case InsertBase:
			bases[posInRead-1] = v.Base
			posInRead++
		case Deletion:
			posInSeq += v.Length
		case RefSkip:
			posInSeq += v.Length
		}
	}

	for ; posInRead <= readLength; posInRead++ {
		bases[posInRead-1] = refAt(posInSeq)
		posInSeq++
	}

	// explicit bases take precedence over anything placed above
	for _, f := range features {
		if v, ok := f.(ReadBase); ok {
			bases[v.Pos-1] = v.Base
		}
	}

	for i, b := range bases {
		bases[i] = upperBase(b)
	}
	return bases
}

// CigarFromFeatures reconstructs the operation string that produced a
// feature list, coalescing adjacent same-operator spans and synthesizing
// match runs for every gap. This is an exact inverse of ToFeatures, not a
// heuristic.
func CigarFromFeatures(features []ReadFeature, readLength int32) []CigarElement {
	if len(features) == 0 {
		return []CigarElement{{Length: readLength, Op: CigarMatch}}
	}

	var list []CigarElement
	lastOp := CigarMatch
	var lastOpLen int32
	lastOpPos := int32(1)

	for _, f := range features {
		gap := f.Position() - (lastOpPos + lastOpLen)
		if gap > 0 {
			if lastOp != CigarMatch {
				list = append(list, CigarElement{Length: lastOpLen, Op: lastOp})
				lastOpPos += lastOpLen
				lastOpLen = gap
			} else {
				lastOpLen += gap
			}
			lastOp = CigarMatch
		}

		var op CigarOp
		var length int32
		switch v := f.(type) {
		case Insertion:
			op, length = CigarInsert, int32(len(v.Bases))
		case SoftClip:
			op, length = CigarSoftClip, int32(len(v.Bases))
		case HardClip:
			op, length = CigarHardClip, v.Length
		case InsertBase:
			op, length = CigarInsert, 1
		case Deletion:
			op, length = CigarDelete, v.Length
		case RefSkip:
			op, length = CigarSkip, v.Length
		case Padding:
			op, length = CigarPadding, v.Length
		case Substitution, ReadBase:
			op, length = CigarMatch, 1
		default:
			continue
		}

		if lastOp != op {
			if lastOpLen > 0 {
				list = append(list, CigarElement{Length: lastOpLen, Op: lastOp})
			}
			lastOp = op
			lastOpLen = length
			lastOpPos = f.Position()
		} else {
			lastOpLen += length
		}
		if !op.ConsumesReadBases() {
			lastOpPos -= length
		}
	}

	// close the trailing operator and synthesize the final match run
	if lastOp != CigarMatch {
		list = append(list, CigarElement{Length: lastOpLen, Op: lastOp})
		if readLength >= lastOpPos+lastOpLen {
			list = append(list, CigarElement{Length: readLength - (lastOpLen + lastOpPos) + 1, Op: CigarMatch})
		}
	} else if readLength == 0 || readLength > lastOpPos-1 {
		length := lastOpLen
		if readLength != 0 {
			length = readLength - lastOpPos + 1
		}
		list = append(list, CigarElement{Length: length, Op: CigarMatch})
	}

	if len(list) == 0 {
		return []CigarElement{{Length: readLength, Op: CigarMatch}}
	}
	return list
}

// AlignmentEnd computes the 1-based inclusive end of the aligned span:
// deletions and skips extend it, inserted and soft-clipped bases do not
// consume reference.
func AlignmentEnd(alignmentStart, readLength int32, features []ReadFeature) int32 {
	span := readLength
	for _, f := range features {
		switch v := f.(type) {
		case InsertBase:
			span--
		case Insertion:
			span -= int32(len(v.Bases))
		case SoftClip:
			span -= int32(len(v.Bases))
		case Deletion:
			span += v.Length
		case RefSkip:
			span += v.Length
		}
	}
	return alignmentStart + span - 1
}

func upperBase(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func isUpperACGTN(b byte) bool {
	switch b {
	case 'A', 'C', 'G', 'T', 'N':
		return true
	default:
		return false
	}
}
