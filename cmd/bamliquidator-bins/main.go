// bamliquidator-bins partitions each listed chromosome into fixed-width
// bins, counts the reads of a coordinate-sorted indexed BAM file falling
// into each bin (all chromosomes in parallel), and appends the normalized
// per-bin densities to a count table in chromosome argument order.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"

	"github.com/bradnerlab/liquidator/bamio"
	"github.com/bradnerlab/liquidator/countdb"
	"github.com/bradnerlab/liquidator/liquidate"
)

// Exit codes are a contract with the batch driver that shells out to this
// binary.
const (
	exitUsage     = 1
	exitZeroBin   = 2
	exitTableOpen = 3
	exitFailure   = 4
)

var exportTSV = flag.Bool("tsv", false, "Dump an existing count table as TSV to stdout instead of counting")

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s cell_type bin_size bam_file table_file chr1 length1 [chr2 length2 ...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "   or: %s -tsv table_file\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "e.g. %s mm1s 100000 04032013.hg18.bwt.sorted.bam counts.rio chr1 247249719 chr2 242951149\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	args := flag.Args()
	if *exportTSV {
		if len(args) != 1 {
			usage()
			exit(shutdown, exitUsage)
		}
		if err := dumpTSV(args[0]); err != nil {
			log.Error.Printf("%v", err)
			exit(shutdown, exitFailure)
		}
		return
	}

	if len(args) < 6 || len(args)%2 != 0 {
		usage()
		exit(shutdown, exitUsage)
	}
	cellType := args[0]
	binSize, err := strconv.Atoi(args[1])
	if err != nil || binSize < 0 {
		log.Error.Printf("bad bin size %q", args[1])
		exit(shutdown, exitUsage)
	}
	bamPath := args[2]
	tablePath := args[3]
	var chroms []liquidate.Chromosome
	for i := 4; i+1 < len(args); i += 2 {
		length, err := strconv.Atoi(args[i+1])
		if err != nil {
			log.Error.Printf("bad length %q for chromosome %s", args[i+1], args[i])
			exit(shutdown, exitUsage)
		}
		chroms = append(chroms, liquidate.Chromosome{Name: args[i], Length: length})
	}
	if binSize == 0 {
		log.Error.Printf("bin size cannot be zero")
		exit(shutdown, exitZeroBin)
	}

	ctx := vcontext.Background()
	table, err := countdb.Create(ctx, tablePath)
	if err != nil {
		log.Error.Printf("%v", err)
		exit(shutdown, exitTableOpen)
	}
	provider := &bamio.BAMProvider{Path: bamPath}
	err = liquidate.Batch(table, provider, cellType, filepath.Base(bamPath), binSize, chroms)
	if e := table.Close(); e != nil && err == nil {
		err = e
	}
	if e := provider.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		log.Error.Printf("%v", err)
		exit(shutdown, exitFailure)
	}
}

func dumpTSV(path string) error {
	recs, err := countdb.ReadAll(vcontext.Background(), path)
	if err != nil {
		return err
	}
	w := tsv.NewWriter(os.Stdout)
	for i := range recs {
		r := &recs[i]
		w.WriteString(r.CellType)
		w.WriteString(r.FileName)
		w.WriteString(r.Chromosome)
		w.WriteUint32(r.BinNumber)
		w.WriteString(strconv.FormatUint(r.Count, 10))
		w.WriteString(strconv.FormatFloat(r.NormalizedCount, 'g', -1, 64))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func exit(shutdown func(), code int) {
	shutdown()
	os.Exit(code)
}
