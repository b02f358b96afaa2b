package bamio

import "github.com/grailbio/hts/sam"

// fakeProvider yields a fixed, coordinate-sorted record list. Tests only.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
}

type fakeIterator struct {
	recs  []*sam.Record
	rec   *sam.Record
	shard Shard
	limit coord
}

// NewFakeProvider creates a provider that returns header in response to
// GetHeader and serves recs through NewIterator.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header: header, recs: recs}
}

// GetHeader implements the Provider interface.
func (f *fakeProvider) GetHeader() (*sam.Header, error) {
	return f.header, nil
}

// Close implements the Provider interface.
func (f *fakeProvider) Close() error {
	return nil
}

// NewIterator implements the Provider interface.
func (f *fakeProvider) NewIterator(shard Shard) Iterator {
	return &fakeIterator{
		recs:  f.recs,
		shard: shard,
		limit: coordOf(shard.EndRef, shard.End),
	}
}

func (i *fakeIterator) Scan() bool {
	for len(i.recs) > 0 {
		r := i.recs[0]
		i.recs = i.recs[1:]
		if recordCoord(r).ge(i.limit) {
			return false
		}
		if i.shard.contains(r) {
			i.rec = r
			return true
		}
	}
	return false
}

// Record returns a copy so that the code under test cannot alter the
// original test input data.
func (i *fakeIterator) Record() *sam.Record {
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	return copy
}

func (i *fakeIterator) Err() error {
	return nil
}

func (i *fakeIterator) Close() error {
	return nil
}
