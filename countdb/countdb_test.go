package countdb

import (
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalLayout(t *testing.T) {
	rec := Record{
		CellType:        "mm1s",
		FileName:        "sample.bam",
		Chromosome:      "chr1",
		BinNumber:       7,
		Count:           1234,
		NormalizedCount: 0.25,
	}
	buf, err := marshalRecord(nil, &rec)
	require.NoError(t, err)
	assert.Equal(t, recordBytes, len(buf))
	assert.Equal(t, "mm1s", trimPadding(buf[0:16]))
	assert.Equal(t, "sample.bam", trimPadding(buf[16:80]))
	assert.Equal(t, "chr1", trimPadding(buf[80:96]))

	got, err := unmarshalRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, rec, *got.(*Record))
}

func TestMarshalTruncation(t *testing.T) {
	rec := Record{
		CellType:   "a_cell_type_longer_than_sixteen",
		FileName:   "f.bam",
		Chromosome: "chr2",
	}
	buf, err := marshalRecord(make([]byte, recordBytes), &rec)
	require.NoError(t, err)
	got, err := unmarshalRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, "a_cell_type_long", got.(*Record).CellType)
	assert.Equal(t, "chr2", got.(*Record).Chromosome)
}

func TestUnmarshalCorrupt(t *testing.T) {
	_, err := unmarshalRecord(make([]byte, recordBytes-1))
	assert.Error(t, err)
}

func TestTableRoundtrip(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	path := tmpDir + "/counts.rio"

	table, err := Create(ctx, path)
	require.NoError(t, err)
	first := []Record{
		{CellType: "mm1s", FileName: "f.bam", Chromosome: "chr1", BinNumber: 0, Count: 3, NormalizedCount: 0.3},
		{CellType: "mm1s", FileName: "f.bam", Chromosome: "chr1", BinNumber: 1, Count: 0, NormalizedCount: 0},
	}
	second := []Record{
		{CellType: "mm1s", FileName: "f.bam", Chromosome: "chr2", BinNumber: 0, Count: 9, NormalizedCount: 0.9},
	}
	require.NoError(t, table.Append(first))
	require.NoError(t, table.Append(second))
	require.NoError(t, table.Close())

	got, err := ReadAll(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, append(append([]Record{}, first...), second...), got)
}
