package record

import "fmt"

// MissingQualityScore marks an absent quality value.
const MissingQualityScore byte = 0xFF

// BAM flag bits carried in the BF series.
const (
	FlagMultiSegment    int32 = 0x1
	FlagProperPair      int32 = 0x2
	FlagSegmentUnmapped int32 = 0x4
	FlagMateUnmapped    int32 = 0x8
	FlagNegativeStrand  int32 = 0x10
	FlagMateNegative    int32 = 0x20
	FlagFirstSegment    int32 = 0x40
	FlagLastSegment     int32 = 0x80
	FlagSecondary       int32 = 0x100
	FlagVendorFiltered  int32 = 0x200
	FlagDuplicate       int32 = 0x400
	FlagSupplementary   int32 = 0x800
)

// Compression flag bits carried in the CF series.
const (
	CFQualityScoresStored int32 = 0x1
	CFDetached            int32 = 0x2
	CFMateDownstream      int32 = 0x4
	CFUnknownBases        int32 = 0x8
)

// Mate flag bits carried in the MF series.
const (
	MateNegativeStrand int32 = 0x1
	MateUnmapped       int32 = 0x2
)

// NoMate marks a record without a resolved in-slice mate.
const NoMate = -1

// Record is this layer's view of one aligned read: positional fields, the
// feature list, and mate links expressed as indices into the slice's record
// arena rather than live pointers.
type Record struct {
	// Index is this record's position in the slice arena.
	Index int

	BAMFlags       int32
	CRAMFlags      int32
	ReferenceID    int32
	ReadLength     int32
	AlignmentStart int32
	ReadGroupID    int32
	ReadName       string
	MappingQuality int32

	Bases     []byte
	Qualities []byte
	Cigar     []CigarElement
	Features  []ReadFeature

	// mate links by arena index, resolved in a post-pass
	NextSegmentIndex int
	PrevSegmentIndex int

	// RecordsToNextFragment is the NF series value: how many records sit
	// between this one and its downstream mate.
	RecordsToNextFragment int32

	// detached mate fields, recomputed when the mate is outside the slice
	MateFlags         int32
	NextFragmentRefID int32
	NextFragmentStart int32
	TemplateSize      int32
}

func (r *Record) IsMultiSegment() bool    { return r.BAMFlags&FlagMultiSegment != 0 }
func (r *Record) IsSegmentUnmapped() bool { return r.BAMFlags&FlagSegmentUnmapped != 0 }
func (r *Record) IsNegativeStrand() bool  { return r.BAMFlags&FlagNegativeStrand != 0 }
func (r *Record) IsDetached() bool        { return r.CRAMFlags&CFDetached != 0 }
func (r *Record) HasMateDownstream() bool { return r.CRAMFlags&CFMateDownstream != 0 }
func (r *Record) HasUnknownBases() bool   { return r.CRAMFlags&CFUnknownBases != 0 }

// AlignmentEnd computes the record's 1-based inclusive alignment end from
// its feature list.
func (r *Record) AlignmentEnd() int32 {
	return AlignmentEnd(r.AlignmentStart, r.ReadLength, r.Features)
}

// ResolveMates links multi-segment records within one slice arena. Records
// flagged as having a downstream mate point RecordsToNextFragment records
// ahead; links out of range are format errors. After linking, each chain's
// mate fields and template sizes are restored.
func ResolveMates(records []*Record) error {
	for i, r := range records {
		r.Index = i
		r.NextSegmentIndex = NoMate
		r.PrevSegmentIndex = NoMate
	}
	for i, r := range records {
		if !r.HasMateDownstream() {
			continue
		}
		next := i + int(r.RecordsToNextFragment) + 1
		if next <= i || next >= len(records) {
			return fmt.Errorf("record %d links to mate %d outside the slice of %d records",
				i, next, len(records))
		}
		r.NextSegmentIndex = next
		records[next].PrevSegmentIndex = i
	}
	for _, r := range records {
		if r.PrevSegmentIndex == NoMate && r.NextSegmentIndex != NoMate {
			restoreMateChain(records, r)
		}
	}
	return nil
}

// restoreMateChain walks one chain from its head, pointing each segment at
// the next and the last segment back at the head, then recomputes template
// sizes for fully mapped chains.
func restoreMateChain(records []*Record, head *Record) {
	cur := head
	for cur.NextSegmentIndex != NoMate {
		next := records[cur.NextSegmentIndex]
		setNextMate(cur, next)
		cur = next
	}
	// the chain is circular on the wire: the last segment points back
	setNextMate(cur, head)

	last := cur
	if head == last {
		return
	}
	if head.IsSegmentUnmapped() || last.IsSegmentUnmapped() ||
		head.ReferenceID != last.ReferenceID {
		return
	}
	size := templateSize(head, last)
	head.TemplateSize = size
	last.TemplateSize = -size
}

func setNextMate(r, next *Record) {
	r.NextFragmentRefID = next.ReferenceID
	r.NextFragmentStart = next.AlignmentStart
	r.MateFlags = 0
	if next.IsNegativeStrand() {
		r.MateFlags |= MateNegativeStrand
	}
	if next.IsSegmentUnmapped() {
		r.MateFlags |= MateUnmapped
	}
}

// templateSize is the signed distance between the leftmost start and the
// rightmost end of two mapped segments.
func templateSize(a, b *Record) int32 {
	left := a.AlignmentStart
	if b.AlignmentStart < left {
		left = b.AlignmentStart
	}
	right := a.AlignmentEnd()
	if e := b.AlignmentEnd(); e > right {
		right = e
	}
	return right - left + 1
}
