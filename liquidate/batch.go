package liquidate

import (
	"fmt"

	"github.com/grailbio/base/log"

	"github.com/bradnerlab/liquidator/bamio"
	"github.com/bradnerlab/liquidator/countdb"
)

// Chromosome is one unit of binned-count work.
type Chromosome struct {
	Name   string
	Length int
}

type countResult struct {
	recs []countdb.Record
	err  error
}

// Batch counts every chromosome concurrently and appends the results to
// table strictly in the order chroms was given, one append per chromosome.
//
// The table has no internal concurrency control and downstream consumers
// require deterministic row order, so collection blocks on each task in
// turn even when a later task finishes first. A failed append is logged
// and skipped; a failed count aborts the run, but only after every
// launched task has drained.
func Batch(table *countdb.Table, p bamio.Provider, cellType, fileName string, binSize int, chroms []Chromosome) error {
	if binSize <= 0 {
		return fmt.Errorf("liquidate: bin size must be positive, got %d", binSize)
	}
	futures := make([]chan countResult, len(chroms))
	for i, chrom := range chroms {
		ch := make(chan countResult, 1)
		futures[i] = ch
		go func(c Chromosome) {
			recs, err := CountBins(p, c.Name, cellType, fileName, binSize, c.Length)
			ch <- countResult{recs: recs, err: err}
		}(chrom)
	}

	var firstErr error
	for i, ch := range futures {
		res := <-ch
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			log.Error.Printf("liquidate: counting %s: %v", chroms[i].Name, res.err)
			continue
		}
		if err := table.Append(res.recs); err != nil {
			// Soft failure: the remaining chromosomes still get their rows.
			log.Error.Printf("liquidate: appending %s: %v", chroms[i].Name, err)
		}
	}
	return firstErr
}
