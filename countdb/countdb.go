// Package countdb stores binned read counts in an append-only table of
// fixed-layout rows, carried in a zstd-compressed recordio file.
//
// The row image reproduces the field sizes of the original bin_counts
// table; downstream consumers parse it positionally, so the layout is a
// binary contract.
package countdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
)

func init() {
	recordiozstd.Init()
}

const (
	cellTypeBytes   = 16
	fileNameBytes   = 64
	chromosomeBytes = 16
	// recordBytes is the marshaled row image size:
	// cell_type[16] file_name[64] chromosome[16] u32 u64 f64.
	recordBytes = cellTypeBytes + fileNameBytes + chromosomeBytes + 4 + 8 + 8
)

// Record is one bin-count row. String fields longer than their on-disk
// width are truncated on write.
type Record struct {
	CellType        string
	FileName        string
	Chromosome      string
	BinNumber       uint32
	Count           uint64
	NormalizedCount float64
}

// putPaddedString copies s into dst[:n], truncating and NUL-padding.
func putPaddedString(dst []byte, s string, n int) {
	m := copy(dst[:n], s)
	for i := m; i < n; i++ {
		dst[i] = 0
	}
}

func trimPadding(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func marshalRecord(scratch []byte, v interface{}) ([]byte, error) {
	r := v.(*Record)
	t := scratch
	if len(t) < recordBytes {
		t = make([]byte, recordBytes)
	}
	t = t[:recordBytes]
	putPaddedString(t[0:], r.CellType, cellTypeBytes)
	putPaddedString(t[16:], r.FileName, fileNameBytes)
	putPaddedString(t[80:], r.Chromosome, chromosomeBytes)
	binary.LittleEndian.PutUint32(t[96:100], r.BinNumber)
	binary.LittleEndian.PutUint64(t[100:108], r.Count)
	binary.LittleEndian.PutUint64(t[108:116], math.Float64bits(r.NormalizedCount))
	return t, nil
}

func unmarshalRecord(in []byte) (interface{}, error) {
	if len(in) != recordBytes {
		return nil, fmt.Errorf("countdb: corrupt row of %d bytes, want %d", len(in), recordBytes)
	}
	return &Record{
		CellType:        trimPadding(in[0:16]),
		FileName:        trimPadding(in[16:80]),
		Chromosome:      trimPadding(in[80:96]),
		BinNumber:       binary.LittleEndian.Uint32(in[96:100]),
		Count:           binary.LittleEndian.Uint64(in[100:108]),
		NormalizedCount: math.Float64frombits(binary.LittleEndian.Uint64(in[108:116])),
	}, nil
}

// Table appends rows to a bin-count table. Single writer: appends are
// sequential by construction, the collector that owns the table is the
// only goroutine touching it.
type Table struct {
	ctx  context.Context
	path string
	out  file.File
	rio  recordio.Writer
}

// Create creates or truncates the table at path.
func Create(ctx context.Context, path string) (*Table, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("countdb: create %s: %v", path, err)
	}
	t := &Table{ctx: ctx, path: path, out: out}
	t.rio = recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Marshal:      marshalRecord,
		Transformers: []string{recordiozstd.Name},
	})
	return t, nil
}

// Append writes one chromosome's rows as a single sequential block.
func (t *Table) Append(recs []Record) error {
	for i := range recs {
		t.rio.Append(&recs[i])
	}
	t.rio.Flush()
	if err := t.rio.Err(); err != nil {
		return fmt.Errorf("countdb: appending to %s: %v", t.path, err)
	}
	return nil
}

// Close finalizes the table.
func (t *Table) Close() error {
	err := t.rio.Finish()
	if e := t.out.Close(t.ctx); e != nil && err == nil {
		err = e
	}
	return err
}

// ReadAll returns every row of the table at path in file order.
func ReadAll(ctx context.Context, path string) (recs []Record, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("countdb: open %s: %v", path, err)
	}
	defer file.CloseAndReport(ctx, in, &err)
	sc := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{
		Unmarshal: unmarshalRecord,
	})
	for sc.Scan() {
		recs = append(recs, *sc.Get().(*Record))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("countdb: reading %s: %v", path, err)
	}
	return recs, nil
}
