package ml

import "sort"

const maxBins = 64

// binner maps raw feature values to at most maxBins quantile bins. A value
// falls in bin b when it is <= edges[b] and > edges[b-1].
type binner struct {
	edges [][]float64
}

func newBinner(x [][]float64) *binner {
	cols := len(x[0])
	b := &binner{edges: make([][]float64, cols)}
	vals := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i, r := range x {
			vals[i] = r[j]
		}
		sort.Float64s(vals)
		b.edges[j] = quantileEdges(vals)
	}
	return b
}

func quantileEdges(sorted []float64) []float64 {
	uniq := make([]float64, 0, len(sorted))
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) <= maxBins {
		return uniq
	}
	edges := make([]float64, 0, maxBins)
	n := len(sorted)
	for k := 1; k <= maxBins; k++ {
		v := sorted[(k*n-1)/maxBins]
		if len(edges) == 0 || v > edges[len(edges)-1] {
			edges = append(edges, v)
		}
	}
	return edges
}

// transform returns column-major bin indices.
func (b *binner) transform(x [][]float64) [][]uint8 {
	out := make([][]uint8, len(b.edges))
	for j, e := range b.edges {
		col := make([]uint8, len(x))
		last := len(e) - 1
		for i, r := range x {
			k := sort.SearchFloat64s(e, r[j])
			if k > last {
				k = last
			}
			col[i] = uint8(k)
		}
		out[j] = col
	}
	return out
}
