package structure

import "fmt"

// Wire sequence ids with reserved meanings.
const (
	// UnmappedRefID marks a slice or container of unmapped, unplaced records.
	UnmappedRefID int32 = -1
	// MultiRefID marks a slice or container whose records span several
	// reference sequences.
	MultiRefID int32 = -2
)

// ReferenceContext classifies a slice or container as single-reference,
// multi-reference or unmapped. The zero value is the unmapped context.
type ReferenceContext struct {
	seqID int32
}

// NewReferenceContext builds a context from a wire sequence id: a
// non-negative id is single-reference, UnmappedRefID and MultiRefID select
// the sentinel contexts, anything else is a format error.
func NewReferenceContext(seqID int32) (ReferenceContext, error) {
	if seqID < MultiRefID {
		return ReferenceContext{}, fmt.Errorf("invalid reference sequence id: %d", seqID)
	}
	return ReferenceContext{seqID: seqID}, nil
}

// SingleRefContext returns the context for one reference sequence.
func SingleRefContext(seqID int32) ReferenceContext {
	if seqID < 0 {
		panic(fmt.Sprintf("single-reference context requires a non-negative sequence id, got %d", seqID))
	}
	return ReferenceContext{seqID: seqID}
}

// MultiRefContext returns the multiple-reference sentinel context.
func MultiRefContext() ReferenceContext { return ReferenceContext{seqID: MultiRefID} }

// UnmappedContext returns the unmapped sentinel context.
func UnmappedContext() ReferenceContext { return ReferenceContext{seqID: UnmappedRefID} }

func (rc ReferenceContext) IsSingleRef() bool { return rc.seqID >= 0 }
func (rc ReferenceContext) IsMultiRef() bool  { return rc.seqID == MultiRefID }
func (rc ReferenceContext) IsUnmapped() bool  { return rc.seqID == UnmappedRefID }

// SequenceID returns the wire id: the sequence index for single-reference
// contexts, or the sentinel value otherwise.
func (rc ReferenceContext) SequenceID() int32 { return rc.seqID }

func (rc ReferenceContext) String() string {
	switch {
	case rc.IsMultiRef():
		return "multi-ref"
	case rc.IsUnmapped():
		return "unmapped"
	default:
		return fmt.Sprintf("ref %d", rc.seqID)
	}
}

// Alignment sentinels.
const (
	// NoAlignmentStart is carried by unmapped and multi-reference contexts.
	NoAlignmentStart int32 = 0
	// EOFAlignmentStart is the magic alignment start of the end-of-stream
	// sentinel container.
	EOFAlignmentStart int32 = 4542278
)

// AlignmentContext pairs a reference context with the 1-based alignment
// start and span it covers. Start and span are meaningful only for
// single-reference contexts.
type AlignmentContext struct {
	ReferenceContext ReferenceContext
	Start            int32
	Span             int32
}

// UnmappedAlignmentContext returns the context carried by unmapped slices
// and containers.
func UnmappedAlignmentContext() AlignmentContext {
	return AlignmentContext{ReferenceContext: UnmappedContext(), Start: NoAlignmentStart}
}

// MultiRefAlignmentContext returns the context carried by multi-reference
// slices and containers.
func MultiRefAlignmentContext() AlignmentContext {
	return AlignmentContext{ReferenceContext: MultiRefContext(), Start: NoAlignmentStart}
}
