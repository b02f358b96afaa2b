// Package motif implements position-weight-matrix scoring of nucleotide
// sequences against a uniform background. P-values are exact: each matrix
// tabulates its discretized background score distribution up front, so a
// window's p-value is a single lookup.
package motif

import (
	"fmt"
	"math"

	"github.com/bradnerlab/liquidator/scan"
)

// pvalueScale is the number of discrete steps per score unit used when
// tabulating the background distribution.
const pvalueScale = 100

// PWM scores fixed-width windows with log2-odds weights relative to a
// uniform A/C/G/T background. It implements scan.Matrix.
type PWM struct {
	name    string
	weights [][4]float64
	scaled  [][4]int
	maxP    float64

	// Background score distribution over integer-scaled scores.
	// tail[i] = P(scaled background score >= minScaled+i).
	minScaled int
	tail      []float64
}

// New builds a PWM from per-position A/C/G/T counts. pseudocount is added
// to every cell before normalization. Matches with p-value above maxP are
// not reported by Scan.
func New(name string, counts [][4]float64, pseudocount, maxP float64) (*PWM, error) {
	if name == "" {
		return nil, fmt.Errorf("motif: matrix must be named")
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("motif %s: empty count matrix", name)
	}
	p := &PWM{
		name:    name,
		weights: make([][4]float64, len(counts)),
		scaled:  make([][4]int, len(counts)),
		maxP:    maxP,
	}
	for i, row := range counts {
		total := 4 * pseudocount
		for _, c := range row {
			if c < 0 {
				return nil, fmt.Errorf("motif %s: negative count at position %d", name, i)
			}
			total += c
		}
		if total == 0 {
			return nil, fmt.Errorf("motif %s: empty row at position %d (use a pseudocount)", name, i)
		}
		for b, c := range row {
			w := math.Log2((c + pseudocount) / total / 0.25)
			p.weights[i][b] = w
			p.scaled[i][b] = int(math.Round(w * pvalueScale))
		}
	}
	p.tabulate()
	return p, nil
}

// Name returns the matrix label.
func (p *PWM) Name() string { return p.name }

// Width returns the window width in bases.
func (p *PWM) Width() int { return len(p.weights) }

// tabulate convolves the per-position score distributions under the
// uniform background into the full window-score distribution, then stores
// its tail sums for p-value lookup.
func (p *PWM) tabulate() {
	dist := []float64{1}
	minTotal := 0
	for _, row := range p.scaled {
		lo, hi := row[0], row[0]
		for _, v := range row[1:] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		next := make([]float64, len(dist)+hi-lo)
		for j, mass := range dist {
			if mass == 0 {
				continue
			}
			for _, v := range row {
				next[j+v-lo] += mass * 0.25
			}
		}
		dist = next
		minTotal += lo
	}
	p.minScaled = minTotal
	p.tail = make([]float64, len(dist))
	sum := 0.0
	for j := len(dist) - 1; j >= 0; j-- {
		sum += dist[j]
		p.tail[j] = sum
	}
}

// pvalue returns P(background window score >= iscore) for an
// integer-scaled score.
func (p *PWM) pvalue(iscore int) float64 {
	idx := iscore - p.minScaled
	if idx < 0 {
		return 1
	}
	if idx >= len(p.tail) {
		return 0
	}
	return p.tail[idx]
}

// Scan slides the matrix over both strands of seq and returns the windows
// whose p-value is at most the configured maximum.
func (p *PWM) Scan(seq []byte) []scan.Match {
	w := len(p.weights)
	if len(seq) < w {
		return nil
	}
	var matches []scan.Match
	for start := 0; start+w <= len(seq); start++ {
		window := seq[start : start+w]
		for _, strand := range [2]byte{'+', '-'} {
			score, iscore := p.windowScore(window, strand)
			pv := p.pvalue(iscore)
			if pv > p.maxP {
				continue
			}
			matches = append(matches, scan.Match{
				Start:  start,
				Stop:   start + w,
				Strand: strand,
				Score:  score,
				P:      pv,
				Seq:    matchedSeq(window, strand),
			})
		}
	}
	return matches
}

// windowScore scores one window. On the '-' strand the window is read as
// its reverse complement. Unknown bases contribute the background weight
// of zero.
func (p *PWM) windowScore(window []byte, strand byte) (float64, int) {
	var score float64
	var iscore int
	w := len(window)
	for i := 0; i < w; i++ {
		pos := i
		b := baseIndex[window[i]]
		if strand == '-' {
			pos = w - 1 - i
			if b >= 0 {
				b = 3 - b
			}
		}
		if b < 0 {
			continue
		}
		score += p.weights[pos][b]
		iscore += p.scaled[pos][b]
	}
	return score, iscore
}

// baseIndex maps sequence characters to weight columns; -1 means unknown.
var baseIndex = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	t['A'], t['C'], t['G'], t['T'] = 0, 1, 2, 3
	t['a'], t['c'], t['g'], t['t'] = 0, 1, 2, 3
	return t
}()

var complementChar = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 'N'
	}
	t['A'], t['C'], t['G'], t['T'] = 'T', 'G', 'C', 'A'
	t['a'], t['c'], t['g'], t['t'] = 'T', 'G', 'C', 'A'
	return t
}()

// matchedSeq renders the window as matched: verbatim on '+', reverse
// complemented on '-'.
func matchedSeq(window []byte, strand byte) string {
	if strand == '+' {
		return string(window)
	}
	rc := make([]byte, len(window))
	for i, c := range window {
		rc[len(window)-1-i] = complementChar[c]
	}
	return string(rc)
}
