// motif-liquidator scores every read of a BAM file against a set of motif
// matrices, reports per-run hit statistics, and can emit the hit reads to
// a filtered BAM.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"

	"github.com/bradnerlab/liquidator/bamio"
	"github.com/bradnerlab/liquidator/motif"
	"github.com/bradnerlab/liquidator/regions"
	"github.com/bradnerlab/liquidator/scan"
)

var (
	verbose      = flag.Bool("verbose", false, "Print one TSV line per motif hit")
	unmappedOnly = flag.Bool("unmapped-only", false, "Score only unmapped reads")
	regionsPath  = flag.String("regions", "", "Optional region list bounding the scan (chrom start stop per line)")
	hitsPath     = flag.String("hits", "", "Optional output BAM receiving every read with a hit")
	indexPath    = flag.String("index", "", "Input BAM index path. Defaults to bampath + .bai")
	maxP         = flag.Float64("max-p", 1e-3, "Largest match p-value matrices report; only matches below 1e-4 count as hits")
	pseudocount  = flag.Float64("pseudocount", 0.1, "Pseudocount added to every matrix cell")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [OPTIONS] matrix_file bam_file\n", os.Args[0])
		flag.PrintDefaults()
	}
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}
	matrixPath, bamPath := flag.Arg(0), flag.Arg(1)
	ctx := vcontext.Background()

	matrixIn, err := file.Open(ctx, matrixPath)
	if err != nil {
		log.Fatalf("open %s: %v", matrixPath, err)
	}
	pwms, err := motif.ParseMatrices(matrixIn.Reader(ctx), *pseudocount, *maxP)
	if e := matrixIn.Close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		log.Fatalf("%s: %v", matrixPath, err)
	}
	matrices := make([]scan.Matrix, len(pwms))
	for i, p := range pwms {
		matrices[i] = p
	}

	opts := scan.Opts{
		Verbose:      *verbose,
		UnmappedOnly: *unmappedOnly,
		Report:       os.Stdout,
	}
	if *regionsPath != "" {
		if opts.Regions, err = regions.ReadFile(*regionsPath); err != nil {
			log.Fatalf("%v", err)
		}
	}

	provider := &bamio.BAMProvider{Path: bamPath, Index: *indexPath}
	header, err := provider.GetHeader()
	if err != nil {
		log.Fatalf("open %s: %v", bamPath, err)
	}

	var hitsOut file.File
	var hitsWriter *bam.Writer
	if *hitsPath != "" {
		if hitsOut, err = file.Create(ctx, *hitsPath); err != nil {
			log.Fatalf("create %s: %v", *hitsPath, err)
		}
		if hitsWriter, err = bam.NewWriter(hitsOut.Writer(ctx), header, 1); err != nil {
			log.Fatalf("create %s: %v", *hitsPath, err)
		}
		opts.Hits = hitsWriter
	}

	_, err = scan.Scan(provider, matrices, opts)
	if hitsWriter != nil {
		if e := hitsWriter.Close(); e != nil && err == nil {
			err = e
		}
		if e := hitsOut.Close(ctx); e != nil && err == nil {
			err = e
		}
	}
	if e := provider.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}
