// Package scan drives motif-matrix scoring over the reads of an aligned
// sequencing source, tallying per-read and per-run hit statistics, and
// optionally re-emitting the reads that hit to a filtered output.
package scan

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/sam"

	"github.com/bradnerlab/liquidator/bamio"
	"github.com/bradnerlab/liquidator/regions"
)

// PThreshold is the significance cutoff: a match counts as a hit iff its
// p-value is strictly below it.
const PThreshold = 1e-4

// Match is one scoring-matrix hit within a read's decoded sequence.
// Start/Stop are read-relative, half-open.
type Match struct {
	Start  int
	Stop   int
	Strand byte // '+' or '-'
	Score  float64
	P      float64
	Seq    string // matched subsequence, as scored
}

// Matrix scores a decoded nucleotide sequence. Match ordering within one
// matrix is implementation defined; callers must not assume any ordering
// across matrices.
type Matrix interface {
	Name() string
	Scan(seq []byte) []Match
}

// RecordWriter receives the original records classified as hits.
// *bam.Writer implements it.
type RecordWriter interface {
	Write(r *sam.Record) error
}

// Opts configures one traversal run.
type Opts struct {
	// Verbose emits one TSV line per hit to Report.
	Verbose bool
	// UnmappedOnly skips decoding and scoring of mapped reads, which
	// dominate typical inputs.
	UnmappedOnly bool
	// Regions bounds the traversal. Nil means a full sequential scan; a
	// non-nil empty slice is region mode with nothing to visit, so no
	// read is scored.
	Regions []regions.Region
	// Report receives verbose hit lines and the end-of-run summary.
	// Defaults to os.Stdout.
	Report io.Writer
	// Hits, if non-nil, receives every read with at least one hit.
	Hits RecordWriter
}

type scanner struct {
	matrices []Matrix
	opts     Opts
	stats    Stats
	tsvw     *tsv.Writer
	seqBuf   []byte
}

// Scan runs the traversal to completion, writes the summary report, and
// returns the run's statistics.
func Scan(p bamio.Provider, matrices []Matrix, opts Opts) (Stats, error) {
	if len(matrices) == 0 {
		return Stats{}, fmt.Errorf("scan: no scoring matrices given")
	}
	if opts.Report == nil {
		opts.Report = os.Stdout
	}
	header, err := p.GetHeader()
	if err != nil {
		return Stats{}, err
	}
	s := &scanner{matrices: matrices, opts: opts}
	if opts.Verbose {
		s.tsvw = tsv.NewWriter(opts.Report)
		if err := s.writeHitHeader(); err != nil {
			return Stats{}, err
		}
	}

	if opts.Regions == nil {
		err = s.traverse(p.NewIterator(bamio.UniversalShard(header)))
	} else {
		refByName := make(map[string]*sam.Reference, len(header.Refs()))
		for _, ref := range header.Refs() {
			refByName[ref.Name()] = ref
		}
		for _, reg := range opts.Regions {
			if reg.Start >= reg.End {
				continue
			}
			ref, ok := refByName[reg.Chrom]
			if !ok {
				// Region lists are commonly shared across sources that lack
				// some of the named chromosomes.
				log.Debug.Printf("scan: skipping %s:%d-%d, chromosome absent from source",
					reg.Chrom, reg.Start, reg.End)
				continue
			}
			if err = s.traverse(p.NewIterator(bamio.RefShard(ref, reg.Start, reg.End))); err != nil {
				break
			}
		}
	}
	if err != nil {
		return s.stats, err
	}
	if s.tsvw != nil {
		if err := s.tsvw.Flush(); err != nil {
			return s.stats, err
		}
	}
	s.stats.Report(opts.Report, opts.UnmappedOnly)
	return s.stats, nil
}

func (s *scanner) traverse(iter bamio.Iterator) error {
	for iter.Scan() {
		if err := s.scoreRead(iter.Record()); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return iter.Close()
}

// isUnmapped tests the unmapped bit of the alignment flags.
func isUnmapped(r *sam.Record) bool {
	return r.Flags&sam.Unmapped != 0
}

func (s *scanner) scoreRead(r *sam.Record) error {
	s.stats.Reads++
	unmapped := isUnmapped(r)
	if unmapped {
		s.stats.Unmapped++
	}
	if s.opts.UnmappedOnly && !unmapped {
		return nil
	}
	seq := s.decode(r)
	before := s.stats.Hits
	for _, m := range s.matrices {
		for _, match := range m.Scan(seq) {
			if match.P >= PThreshold {
				continue
			}
			s.stats.Hits++
			if s.opts.Verbose {
				if err := s.emitHit(m, r, unmapped, match); err != nil {
					return err
				}
			}
		}
	}
	if s.stats.Hits > before {
		s.stats.HitReads++
		if unmapped {
			s.stats.UnmappedHitReads++
		}
		if s.opts.Hits != nil {
			if err := s.opts.Hits.Write(r); err != nil {
				return fmt.Errorf("scan: writing hit read %s: %v", r.Name, err)
			}
		}
	}
	return nil
}

// seqNibbleToASCII is the .bam seq nibble -> ASCII mapping; code 15 is the
// unknown base 'N', and so is any code the table has no better name for.
var seqNibbleToASCII = [...]byte{'=', 'A', 'C', 'M', 'G', 'R', 'S', 'V', 'T', 'W', 'Y', 'H', 'K', 'D', 'B', 'N'}

// decode expands the packed 4-bit sequence one character per base. The
// buffer is sized by the first read and reallocated only when a read's
// length differs, so uniform-length inputs decode allocation free.
func (s *scanner) decode(r *sam.Record) []byte {
	n := r.Seq.Length
	if len(s.seqBuf) != n {
		s.seqBuf = make([]byte, n)
	}
	for i := 0; i < n; i++ {
		nib := byte(r.Seq.Seq[i>>1])
		if i&1 == 0 {
			nib >>= 4
		}
		s.seqBuf[i] = seqNibbleToASCII[nib&0xf]
	}
	return s.seqBuf
}

func (s *scanner) writeHitHeader() error {
	w := s.tsvw
	w.WriteString("#pattern name")
	w.WriteString("sequence name")
	w.WriteString("start")
	w.WriteString("stop")
	w.WriteString("strand")
	w.WriteString("score")
	w.WriteString("p-value")
	w.WriteString("q-value")
	w.WriteString("matched sequence")
	return w.EndLine()
}

func (s *scanner) emitHit(m Matrix, r *sam.Record, unmapped bool, match Match) error {
	seqName := "mapped:"
	if unmapped {
		seqName = "unmapped:"
	}
	if r.Ref != nil {
		seqName += r.Ref.Name()
	} else {
		seqName += "*"
	}
	w := s.tsvw
	w.WriteString(m.Name())
	w.WriteString(seqName)
	w.WriteUint32(uint32(r.Pos + match.Start))
	w.WriteUint32(uint32(r.Pos + match.Stop))
	w.WriteByte(match.Strand)
	w.WriteString(strconv.FormatFloat(match.Score, 'g', 6, 64))
	w.WriteString(strconv.FormatFloat(match.P, 'g', 3, 64))
	w.WriteString("") // q-value is computed downstream, if at all
	w.WriteString(match.Seq)
	return w.EndLine()
}
