package tsne

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// COO is a sparse symmetric affinity graph in coordinate (triplet) format.
// Entry k encodes an undirected similarity Vals[k] between points Rows[k] and
// Cols[k]; each undirected pair should appear once (row/col order does not
// matter), and the attraction pass mirrors every entry to both endpoints.
//
// The engine mutates Vals in place: when the early-exaggeration phase ends,
// all values are divided by Config.EarlyExaggeration exactly once. Callers
// that reuse a COO across runs must re-apply the exaggeration scaling.
type COO struct {
	Rows []int
	Cols []int
	Vals []float64
}

// NNZ returns the number of stored entries.
func (p *COO) NNZ() int { return len(p.Vals) }

// validate checks the triplet arrays against the point count n.
func (p *COO) validate(n int) error {
	if p == nil {
		return fmt.Errorf("tsne: affinity graph is nil")
	}
	if len(p.Rows) != len(p.Vals) || len(p.Cols) != len(p.Vals) {
		return fmt.Errorf("tsne: COO arrays disagree on length: rows=%d cols=%d vals=%d",
			len(p.Rows), len(p.Cols), len(p.Vals))
	}
	if len(p.Vals) == 0 {
		return fmt.Errorf("tsne: affinity graph has no entries")
	}
	for k := range p.Vals {
		if p.Rows[k] < 0 || p.Rows[k] >= n || p.Cols[k] < 0 || p.Cols[k] >= n {
			return fmt.Errorf("tsne: COO entry %d references point (%d, %d) outside [0, %d)",
				k, p.Rows[k], p.Cols[k], n)
		}
	}
	return nil
}

// scale multiplies every stored value by s in place.
func (p *COO) scale(s float64) {
	floats.Scale(s, p.Vals)
}
