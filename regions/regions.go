// Package regions loads the chromosome interval lists used to bound scans.
package regions

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// Region is a half-open [Start, End) interval on a named chromosome.
type Region struct {
	Chrom string
	Start int
	End   int
}

// ReadFile loads a whitespace-separated "chrom start stop" region list,
// 0-based half-open. Files ending in .gz are decompressed transparently.
func ReadFile(path string) (regions []Region, err error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", path, err)
		}
		defer gz.Close() // nolint: errcheck
		r = gz
	}
	if regions, err = Read(r); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return regions, nil
}

// Read parses a region list. Blank lines and lines starting with '#',
// "track" or "browser" are skipped. The result is non-nil even when the
// input holds no intervals, so that an empty list still bounds a scan.
func Read(r io.Reader) ([]Region, error) {
	out := []Region{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: want at least 3 columns, got %d", lineNo, len(fields))
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad start %q", lineNo, fields[1])
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad stop %q", lineNo, fields[2])
		}
		if start < 0 || end < start {
			return nil, fmt.Errorf("line %d: bad interval [%d, %d)", lineNo, start, end)
		}
		out = append(out, Region{Chrom: fields[0], Start: start, End: end})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
