package motif

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseMatrices reads a matrix file: one ">name" line per matrix, followed
// by one whitespace-separated "A C G T" count row per matrix position.
// Blank lines and '#' comments are ignored.
func ParseMatrices(r io.Reader, pseudocount, maxP float64) ([]*PWM, error) {
	var (
		out    []*PWM
		name   string
		counts [][4]float64
	)
	flush := func() error {
		if name == "" {
			return nil
		}
		p, err := New(name, counts, pseudocount, maxP)
		if err != nil {
			return err
		}
		out = append(out, p)
		name, counts = "", nil
		return nil
	}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, ">") {
			if err := flush(); err != nil {
				return nil, err
			}
			name = strings.TrimSpace(line[1:])
			if name == "" {
				return nil, fmt.Errorf("line %d: empty matrix name", lineNo)
			}
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("line %d: count row before any >name header", lineNo)
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("line %d: motif %s: want 4 counts (A C G T), got %d", lineNo, name, len(fields))
		}
		var row [4]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: motif %s: bad count %q", lineNo, name, f)
			}
			row[i] = v
		}
		counts = append(counts, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no matrices found")
	}
	return out, nil
}
