package regions_test

import (
	"os"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"

	"github.com/bradnerlab/liquidator/regions"
)

func TestRead(t *testing.T) {
	in := `# a comment
track name=peaks description="peaks"
browser position chr1:1-1000
chr1	100	200	peak1
chr1 300 400

chr2	0	50
`
	got, err := regions.Read(strings.NewReader(in))
	expect.NoError(t, err)
	expect.EQ(t, got, []regions.Region{
		{Chrom: "chr1", Start: 100, End: 200},
		{Chrom: "chr1", Start: 300, End: 400},
		{Chrom: "chr2", Start: 0, End: 50},
	})
}

func TestReadEmpty(t *testing.T) {
	// An interval-free list must come back non-nil so callers can tell
	// "no list" apart from "a list with nothing in it".
	for _, in := range []string{"", "# only a comment\n", "track name=x\n"} {
		got, err := regions.Read(strings.NewReader(in))
		expect.NoError(t, err, "input %q", in)
		expect.True(t, got != nil, "input %q", in)
		expect.EQ(t, got, []regions.Region{})
	}
}

func TestReadErrors(t *testing.T) {
	for _, in := range []string{
		"chr1\t100",          // too few columns
		"chr1\tten\t200",     // non-numeric start
		"chr1\t100\ttwo",     // non-numeric stop
		"chr1\t-5\t200",      // negative start
		"chr1\t300\t200",     // stop before start
	} {
		_, err := regions.Read(strings.NewReader(in))
		expect.NotNil(t, err, "input %q", in)
	}
}

func TestReadFileGzip(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := tmpDir + "/regions.bed.gz"

	out, err := os.Create(path)
	expect.NoError(t, err)
	gz := gzip.NewWriter(out)
	_, err = gz.Write([]byte("chr1\t10\t20\nchrX\t0\t1000\n"))
	expect.NoError(t, err)
	expect.NoError(t, gz.Close())
	expect.NoError(t, out.Close())

	got, err := regions.ReadFile(path)
	expect.NoError(t, err)
	expect.EQ(t, got, []regions.Region{
		{Chrom: "chr1", Start: 10, End: 20},
		{Chrom: "chrX", Start: 0, End: 1000},
	})
}
