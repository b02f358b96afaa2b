package bamio

import (
	"math"

	"github.com/grailbio/hts/sam"
)

// Shard is a half-open interval [<StartRef,Start>, <EndRef,End>) of genomic
// coordinates. A nil reference denotes the unmapped-read pseudo-reference,
// which sorts after every mapped reference.
type Shard struct {
	StartRef *sam.Reference
	Start    int
	EndRef   *sam.Reference
	End      int
}

// RefShard returns a shard covering [start, end) of a single reference.
func RefShard(ref *sam.Reference, start, end int) Shard {
	return Shard{StartRef: ref, Start: start, EndRef: ref, End: end}
}

// UniversalShard returns a shard covering every record in the file,
// including the unmapped reads at the end.
func UniversalShard(header *sam.Header) Shard {
	var startRef *sam.Reference
	if refs := header.Refs(); len(refs) > 0 {
		startRef = refs[0]
	}
	return Shard{StartRef: startRef, Start: 0, EndRef: nil, End: math.MaxInt32}
}

// contains reports whether r belongs to the shard: its start coordinate is
// below the limit and either at or past the shard start, or the read's
// alignment extends into the shard from before it.
func (s Shard) contains(r *sam.Record) bool {
	c := recordCoord(r)
	if c.ge(coordOf(s.EndRef, s.End)) {
		return false
	}
	if c.ge(coordOf(s.StartRef, s.Start)) {
		return true
	}
	return s.StartRef != nil && r.Ref == s.StartRef && r.End() > s.Start
}

const unmappedRefID = int32(math.MaxInt32)

// coord totally orders records by (reference, alignment position), with the
// unmapped pseudo-reference last.
type coord struct {
	refID int32
	pos   int32
}

func coordOf(ref *sam.Reference, pos int) coord {
	if ref == nil {
		return coord{unmappedRefID, int32(pos)}
	}
	return coord{int32(ref.ID()), int32(pos)}
}

func recordCoord(r *sam.Record) coord {
	if r.Ref == nil {
		// Unmapped reads carry no meaningful position of their own.
		return coord{unmappedRefID, 0}
	}
	return coord{int32(r.Ref.ID()), int32(r.Pos)}
}

func (c coord) lt(o coord) bool {
	if c.refID != o.refID {
		return c.refID < o.refID
	}
	return c.pos < o.pos
}

func (c coord) ge(o coord) bool { return !c.lt(o) }
