package bamio

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
)

func mustRef(t *testing.T, name string, length int) *sam.Reference {
	ref, err := sam.NewReference(name, "", "", length, nil, nil)
	expect.NoError(t, err)
	return ref
}

func testRecord(name string, ref *sam.Reference, pos, length int, flags sam.Flags) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MatePos = -1
	r.Flags = flags
	if ref != nil {
		r.Cigar = sam.Cigar{sam.NewCigarOp(sam.CigarMatch, length)}
	}
	return r
}

func TestCoordOrder(t *testing.T) {
	ref1 := mustRef(t, "chr1", 1000)
	ref2 := mustRef(t, "chr2", 1000)

	expect.True(t, coordOf(ref1, 10).lt(coordOf(ref1, 20)))
	expect.True(t, coordOf(ref1, 999).lt(coordOf(ref2, 0)))
	// The unmapped pseudo-reference sorts after every mapped reference.
	expect.True(t, coordOf(ref2, 999).lt(coordOf(nil, 0)))
	expect.True(t, coordOf(nil, 0).ge(coordOf(ref1, 0)))
}

func TestUniversalShardIncludesUnmapped(t *testing.T) {
	ref1 := mustRef(t, "chr1", 1000)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref1})
	expect.NoError(t, err)

	recs := []*sam.Record{
		testRecord("r1", ref1, 10, 5, 0),
		testRecord("r2", ref1, 500, 5, 0),
		testRecord("u1", nil, -1, 0, sam.Unmapped),
	}
	iter := NewFakeProvider(header, recs).NewIterator(UniversalShard(header))
	var names []string
	for iter.Scan() {
		names = append(names, iter.Record().Name)
	}
	expect.NoError(t, iter.Close())
	expect.EQ(t, names, []string{"r1", "r2", "u1"})
}

func TestRefShardOverlap(t *testing.T) {
	ref1 := mustRef(t, "chr1", 1000)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref1})
	expect.NoError(t, err)

	recs := []*sam.Record{
		testRecord("before", ref1, 50, 10, 0),     // ends at 60, misses [100,200)
		testRecord("straddle", ref1, 95, 10, 0),   // ends at 105, overlaps
		testRecord("inside", ref1, 150, 10, 0),    // fully inside
		testRecord("at-limit", ref1, 200, 10, 0),  // starts at limit, excluded
		testRecord("after", ref1, 300, 10, 0),     // past the shard
	}
	p := NewFakeProvider(header, recs)
	iter := p.NewIterator(RefShard(ref1, 100, 200))
	var names []string
	for iter.Scan() {
		names = append(names, iter.Record().Name)
	}
	expect.NoError(t, iter.Close())
	expect.EQ(t, names, []string{"straddle", "inside"})
}
