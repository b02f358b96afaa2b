// Package liquidate computes binned read-density counts for the
// chromosomes of an indexed BAM file and appends them, normalized, to a
// persistent count table.
package liquidate

import (
	"fmt"
	"math"

	"github.com/grailbio/hts/sam"

	"github.com/bradnerlab/liquidator/bamio"
	"github.com/bradnerlab/liquidator/countdb"
)

// Liquidate counts the reads whose alignment starts in each of nBins
// binSize-wide bins covering [0, nBins*binSize) on ref. Bin numbering is
// dense and 0-based; the last bin may extend past the reference length.
func Liquidate(p bamio.Provider, ref *sam.Reference, binSize, nBins int) ([]uint64, error) {
	counts := make([]uint64, nBins)
	iter := p.NewIterator(bamio.RefShard(ref, 0, nBins*binSize))
	for iter.Scan() {
		r := iter.Record()
		if bin := r.Pos / binSize; bin >= 0 && bin < nBins {
			counts[bin]++
		}
	}
	return counts, iter.Close()
}

// CountBins runs the bin counter for one chromosome and builds its table
// rows. bins = ceil(length/binSize), covering [0, bins*binSize).
//
// The normalized count reproduces the original formula literally:
// raw * (1/binSize) * (1/(length/1e6)). The second term divides by the
// chromosome length in megabases where reads-per-million semantics would
// divide by the library size; downstream consumers depend on the literal
// behavior, so it is kept as is.
func CountBins(p bamio.Provider, chrom, cellType, fileName string, binSize, length int) ([]countdb.Record, error) {
	if binSize <= 0 {
		return nil, fmt.Errorf("liquidate: bin size must be positive, got %d", binSize)
	}
	if length <= 0 {
		return nil, fmt.Errorf("liquidate: %s: length must be positive, got %d", chrom, length)
	}
	header, err := p.GetHeader()
	if err != nil {
		return nil, err
	}
	var ref *sam.Reference
	for _, hr := range header.Refs() {
		if hr.Name() == chrom {
			ref = hr
			break
		}
	}
	if ref == nil {
		return nil, fmt.Errorf("liquidate: chromosome %s not present in %s", chrom, fileName)
	}
	bins := int(math.Ceil(float64(length) / float64(binSize)))
	raw, err := Liquidate(p, ref, binSize, bins)
	if err != nil {
		return nil, err
	}
	normalization := (1 / float64(binSize)) * (1 / (float64(length) / 1e6))
	recs := make([]countdb.Record, len(raw))
	for bin, count := range raw {
		recs[bin] = countdb.Record{
			CellType:        cellType,
			FileName:        fileName,
			Chromosome:      chrom,
			BinNumber:       uint32(bin),
			Count:           count,
			NormalizedCount: float64(count) * normalization,
		}
	}
	return recs, nil
}
