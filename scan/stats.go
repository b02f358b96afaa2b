package scan

import (
	"fmt"
	"io"
)

// Stats holds one traversal run's counters. Created at run start, updated
// once per processed read, never reset mid-run.
type Stats struct {
	Reads            uint64 // records seen
	Unmapped         uint64 // records with the unmapped flag set
	HitReads         uint64 // records with at least one hit
	UnmappedHitReads uint64 // unmapped records with at least one hit
	Hits             uint64 // hits across all records
}

// Report writes the end-of-run ratio summary. In unmapped-only mode the
// ratios whose denominators were never fully counted are suppressed.
// Ratios with a zero denominator render as a non-finite value rather than
// failing.
func (st Stats) Report(w io.Writer, unmappedOnly bool) {
	mapped := st.Reads - st.Unmapped
	mappedHit := st.HitReads - st.UnmappedHitReads
	if !unmappedOnly {
		writeRatio(w, "reads hit", st.HitReads, "total reads", st.Reads)
		writeRatio(w, "mapped reads hit", mappedHit, "mapped reads", mapped)
	}
	writeRatio(w, "unmapped reads hit", st.UnmappedHitReads, "unmapped reads", st.Unmapped)
	if !unmappedOnly {
		writeRatio(w, "unmapped reads hit", st.UnmappedHitReads, "reads hit", st.HitReads)
	}
	writeRatio(w, "unmapped reads", st.Unmapped, "total reads", st.Reads)
	fmt.Fprintf(w, "%d total hits, %g hits per hit read\n",
		st.Hits, float64(st.Hits)/float64(st.HitReads))
}

func writeRatio(w io.Writer, numLabel string, num uint64, denLabel string, den uint64) {
	fmt.Fprintf(w, "(%s) / (%s) = %d/%d = %g%%\n",
		numLabel, denLabel, num, den, float64(num)/float64(den)*100)
}
