// Package bamio reads coordinate-sorted, indexed BAM files, either
// sequentially or bounded to a genomic interval resolved through the BAI
// index.
package bamio

import (
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
)

// Provider hands out iterators over an aligned-read source. Thread safe;
// every iterator owns an independent cursor, so concurrent iterators never
// share read state.
type Provider interface {
	// GetHeader returns the header for the provided BAM data. The caller
	// must not modify the returned header object.
	GetHeader() (*sam.Header, error)

	// NewIterator returns an iterator over the records contained in shard.
	NewIterator(shard Shard) Iterator

	// Close must be called exactly once, after all iterators have been
	// closed. It returns any error encountered by the provider or by any
	// iterator it created.
	Close() error
}

// Iterator yields sam.Records within one shard in coordinate order.
type Iterator interface {
	// Scan advances the iterator to the next record, returning false at the
	// end of the shard or on error.
	Scan() bool

	// Record returns the current record. Valid only after Scan returned
	// true.
	Record() *sam.Record

	// Err returns the error encountered during iteration, if any. io.EOF is
	// translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

// BAMProvider implements Provider for a BAM file with a BAI index.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of the *.bam.bai file. If "", Path + ".bai".
	Index string
	err   errors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	index    *bam.Index
	// Offset of the first record in the file.
	firstRecord bgzf.Offset

	shard     Shard
	limitAddr coord

	active bool
	err    error
	next   *sam.Record
}

func (b *BAMProvider) indexPath() string {
	if b.Index != "" {
		return b.Index
	}
	return b.Path + ".bai"
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx) // nolint: errcheck
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		err = fmt.Errorf("%s: reading header: %v", b.Path, err)
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close() // nolint: errcheck
	b.header = bamReader.Header()
	return b.header, nil
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	if b.nActive > 0 {
		log.Panicf("%d iterators still active for %v", b.nActive, b.Path)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	return b.err.Err()
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	if !i.active {
		log.Panicf("%s: iterator freed twice", b.Path)
	}
	i.active = false
	if i.Err() != nil {
		// The iterator may be in a bad state. Don't reuse it.
		i.internalClose() // sets b.err
		i = nil
	}
	b.mu.Lock()
	if i != nil {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	if b.nActive < 0 {
		log.Panicf("%s: negative active iterator count", b.Path)
	}
	b.mu.Unlock()
}

// allocateIterator returns an unused iterator, reusing a pooled one when
// possible and otherwise opening the BAM file and its index. On error it
// returns an iterator with a non-nil err field.
func (b *BAMProvider) allocateIterator() *bamIterator {
	b.mu.Lock()
	b.nActive++
	if n := len(b.freeIters); n > 0 {
		iter := b.freeIters[n-1]
		b.freeIters = b.freeIters[:n-1]
		b.mu.Unlock()
		iter.active = true
		iter.err = nil
		iter.next = nil
		return iter
	}
	b.mu.Unlock()

	iter := bamIterator{provider: b, active: true}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		return &iter
	}
	var indexIn file.File
	if indexIn, iter.err = file.Open(ctx, b.indexPath()); iter.err != nil {
		return &iter
	}
	defer indexIn.Close(ctx) // nolint: errcheck
	if iter.index, iter.err = bam.ReadIndex(indexIn.Reader(ctx)); iter.err != nil {
		iter.err = fmt.Errorf("%s: reading index: %v", b.indexPath(), iter.err)
		return &iter
	}
	if iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1); iter.err != nil {
		iter.err = fmt.Errorf("%s: %v", b.Path, iter.err)
		return &iter
	}
	iter.firstRecord = iter.reader.LastChunk().End
	return &iter
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(shard Shard) Iterator {
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.reset(shard)
	return iter
}

// reset points the iterator at the start of shard.
func (i *bamIterator) reset(shard Shard) {
	header := i.reader.Header()
	i.shard = shard
	i.limitAddr = coordOf(shard.EndRef, shard.End)
	startAddr := coordOf(shard.StartRef, shard.Start)
	if startAddr.ge(i.limitAddr) {
		i.err = fmt.Errorf("shard start %v:%d not before limit %v:%d",
			refName(shard.StartRef), shard.Start, refName(shard.EndRef), shard.End)
		return
	}

	// Walk the index to find the file offset of the first candidate record.
	var offset bgzf.Offset
	var err error
	ref := shard.StartRef
	for {
		if ref == nil {
			offset, err = i.findUnmappedOffset()
			break
		}
		start := 0
		if ref.ID() == shard.StartRef.ID() {
			start = shard.Start
		}
		end := ref.Len()
		if shard.EndRef != nil && ref.ID() == shard.EndRef.ID() && shard.End < end {
			end = shard.End
		}
		var found bool
		if start < end {
			if found, offset, err = i.findRecordOffset(ref, start, end); err != nil {
				break
			}
		}
		if found {
			break
		}
		if shard.EndRef != nil && ref.ID() == shard.EndRef.ID() {
			// No reference in the shard has any indexed reads.
			i.err = io.EOF
			return
		}
		// Nothing indexed on this reference. Try the next one.
		if next := ref.ID() + 1; next < len(header.Refs()) {
			ref = header.Refs()[next]
		} else {
			ref = nil
		}
	}
	if err != nil {
		i.err = err
		return
	}
	i.err = i.reader.Seek(offset)
}

// findUnmappedOffset returns a file offset at or before the first unmapped
// record. It may be conservative (smaller than strictly necessary).
func (i *bamIterator) findUnmappedOffset() (bgzf.Offset, error) {
	header := i.reader.Header()
	var lastOffset bgzf.Offset
	foundRefs := false
	for _, r := range header.Refs() {
		chunks, err := i.index.Chunks(r, 0, r.Len())
		if err == index.ErrInvalid {
			// No reads on this reference.
			continue
		}
		if err != nil {
			return lastOffset, err
		}
		foundRefs = true
		c := chunks[len(chunks)-1]
		if c.End.File > lastOffset.File ||
			(c.End.File == lastOffset.File && c.End.Block > lastOffset.Block) {
			lastOffset = c.End
		}
	}
	if !foundRefs {
		return i.firstRecord, nil
	}
	return lastOffset, nil
}

// findRecordOffset returns a file offset at or before the first record
// overlapping [startPos, endPos) on ref.
func (i *bamIterator) findRecordOffset(ref *sam.Reference, startPos, endPos int) (bool, bgzf.Offset, error) {
	chunks, err := i.index.Chunks(ref, startPos, endPos)
	if err == index.ErrInvalid || len(chunks) == 0 {
		// No reads for this interval.
		return false, bgzf.Offset{}, nil
	}
	if err != nil {
		return false, bgzf.Offset{}, err
	}
	return true, chunks[0].Begin, nil
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if !i.active {
		log.Panicf("%s: iterator reused after Close", i.provider.Path)
	}
	if i.err != nil {
		return false
	}
	for {
		if i.next, i.err = i.reader.Read(); i.err != nil {
			return false
		}
		if recordCoord(i.next).ge(i.limitAddr) {
			// Records are coordinate sorted, so nothing further can match.
			i.err = io.EOF
			return false
		}
		if i.shard.contains(i.next) {
			return true
		}
	}
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record {
	return i.next
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}

func refName(ref *sam.Reference) string {
	if ref == nil {
		return "*"
	}
	return ref.Name()
}
