// Package record holds the positional record model and the invertible
// transform between alignment operation strings and read-feature lists.
package record

// Read feature wire operators.
const (
	OpSubstitution byte = 'X'
	OpInsertion    byte = 'I'
	OpInsertBase   byte = 'i'
	OpDeletion     byte = 'D'
	OpRefSkip      byte = 'N'
	OpSoftClip     byte = 'S'
	OpHardClip     byte = 'H'
	OpPadding      byte = 'P'
	OpReadBase     byte = 'B'
)

// NoSubstitutionCode marks a substitution built from observed bases, whose
// 2-bit code is assigned later against the container's matrix.
const NoSubstitutionCode byte = 0xFF

// ReadFeature is one edit operation describing how a read differs from its
// reference. The variant set is closed; consumers switch exhaustively on
// Operator. Positions are 1-based and read-relative.
type ReadFeature interface {
	Position() int32
	Operator() byte
}

// Substitution replaces one reference base with another base from the
// {A,C,G,T,N} alphabet. Base and RefBase are populated on the encode path,
// Code on the decode path.
type Substitution struct {
	Pos     int32
	Base    byte
	RefBase byte
	Code    byte
}

func (f Substitution) Position() int32 { return f.Pos }
func (f Substitution) Operator() byte  { return OpSubstitution }

// Insertion inserts a run of bases into the read.
type Insertion struct {
	Pos   int32
	Bases []byte
}

func (f Insertion) Position() int32 { return f.Pos }
func (f Insertion) Operator() byte  { return OpInsertion }

// InsertBase inserts a single base into the read.
type InsertBase struct {
	Pos  int32
	Base byte
}

func (f InsertBase) Position() int32 { return f.Pos }
func (f InsertBase) Operator() byte  { return OpInsertBase }

// Deletion removes reference bases from the read.
type Deletion struct {
	Pos    int32
	Length int32
}

func (f Deletion) Position() int32 { return f.Pos }
func (f Deletion) Operator() byte  { return OpDeletion }

// RefSkip advances past a skipped reference region.
type RefSkip struct {
	Pos    int32
	Length int32
}

func (f RefSkip) Position() int32 { return f.Pos }
func (f RefSkip) Operator() byte  { return OpRefSkip }

// SoftClip stores clipped read bases verbatim.
type SoftClip struct {
	Pos   int32
	Bases []byte
}

func (f SoftClip) Position() int32 { return f.Pos }
func (f SoftClip) Operator() byte  { return OpSoftClip }

// HardClip records clipped bases absent from the read.
type HardClip struct {
	Pos    int32
	Length int32
}

func (f HardClip) Position() int32 { return f.Pos }
func (f HardClip) Operator() byte  { return OpHardClip }

// Padding records silent deletions from padded reference.
type Padding struct {
	Pos    int32
	Length int32
}

func (f Padding) Position() int32 { return f.Pos }
func (f Padding) Operator() byte  { return OpPadding }

// ReadBase stores an explicit base and quality, used for mismatches the
// substitution matrix cannot represent.
type ReadBase struct {
	Pos     int32
	Base    byte
	Quality byte
}

func (f ReadBase) Position() int32 { return f.Pos }
func (f ReadBase) Operator() byte  { return OpReadBase }
