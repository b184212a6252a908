package ml

import "math/rand"

// node is a tree vertex. Left == 0 marks a leaf since the root is never
// anyone's child.
type node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

func (t *tree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *tree) scale(f float64) {
	for i := range t.Nodes {
		t.Nodes[i].Value *= f
	}
}

// growConfig controls a second-order tree fit on gradients g and hessians h.
// With g = -y and h = 1 the leaves are class frequencies and the split gain
// is the Gini decrease.
type growConfig struct {
	maxDepth        int // 0 = unlimited
	maxLeaves       int // 0 = unlimited
	minChildWeight  float64
	minChildSamples int
	lambda          float64
	features        []int // columns this tree may use
	nodeFeatures    int   // columns sampled per node, 0 = all of features
	rng             *rand.Rand
}

type split struct {
	ok      bool
	feature int
	bin     int
	gain    float64
}

type candidate struct {
	node  int
	idx   []int
	depth int
	g, h  float64
	best  split
}

type grower struct {
	cfg        growConfig
	bins       [][]uint8
	edges      [][]float64
	g, h       []float64
	importance []float64
}

func (gr *grower) leafValue(g, h float64) float64 {
	d := h + gr.cfg.lambda
	if d == 0 {
		return 0
	}
	return -g / d
}

func (gr *grower) score(g, h float64) float64 {
	return g * g / (h + gr.cfg.lambda)
}

func (gr *grower) grow(idx []int) tree {
	var g, h float64
	for _, i := range idx {
		g += gr.g[i]
		h += gr.h[i]
	}
	t := tree{Nodes: []node{{Value: gr.leafValue(g, h)}}}
	root := &candidate{node: 0, idx: idx, g: g, h: h}
	root.best = gr.findSplit(root)
	cands := []*candidate{root}
	leaves := 1

	for len(cands) > 0 {
		if gr.cfg.maxLeaves > 0 && leaves >= gr.cfg.maxLeaves {
			break
		}
		bi := -1
		for i, c := range cands {
			if c.best.ok && (bi < 0 || c.best.gain > cands[bi].best.gain) {
				bi = i
			}
		}
		if bi < 0 {
			break
		}
		c := cands[bi]
		cands = append(cands[:bi], cands[bi+1:]...)

		f, b := c.best.feature, c.best.bin
		var left, right []int
		var gl, hl float64
		for _, i := range c.idx {
			if int(gr.bins[f][i]) <= b {
				left = append(left, i)
				gl += gr.g[i]
				hl += gr.h[i]
			} else {
				right = append(right, i)
			}
		}
		gr.importance[f] += c.best.gain

		li, ri := len(t.Nodes), len(t.Nodes)+1
		t.Nodes = append(t.Nodes,
			node{Value: gr.leafValue(gl, hl)},
			node{Value: gr.leafValue(c.g-gl, c.h-hl)})
		t.Nodes[c.node].Feature = f
		t.Nodes[c.node].Threshold = gr.edges[f][b]
		t.Nodes[c.node].Left = li
		t.Nodes[c.node].Right = ri
		leaves++

		for _, ch := range []*candidate{
			{node: li, idx: left, depth: c.depth + 1, g: gl, h: hl},
			{node: ri, idx: right, depth: c.depth + 1, g: c.g - gl, h: c.h - hl},
		} {
			if gr.cfg.maxDepth == 0 || ch.depth < gr.cfg.maxDepth {
				ch.best = gr.findSplit(ch)
			}
			if ch.best.ok {
				cands = append(cands, ch)
			}
		}
	}
	return t
}

func (gr *grower) candidateFeatures() []int {
	fs := gr.cfg.features
	k := gr.cfg.nodeFeatures
	if k <= 0 || k >= len(fs) {
		return fs
	}
	pick := append([]int(nil), fs...)
	for i := 0; i < k; i++ {
		j := i + gr.cfg.rng.Intn(len(pick)-i)
		pick[i], pick[j] = pick[j], pick[i]
	}
	return pick[:k]
}

func (gr *grower) findSplit(c *candidate) split {
	minSamples := gr.cfg.minChildSamples
	if minSamples < 1 {
		minSamples = 1
	}
	if len(c.idx) < 2*minSamples {
		return split{}
	}
	parent := gr.score(c.g, c.h)
	best := split{}
	for _, f := range gr.candidateFeatures() {
		nb := len(gr.edges[f])
		if nb < 2 {
			continue
		}
		hg := make([]float64, nb)
		hh := make([]float64, nb)
		hc := make([]int, nb)
		col := gr.bins[f]
		for _, i := range c.idx {
			b := col[i]
			hg[b] += gr.g[i]
			hh[b] += gr.h[i]
			hc[b]++
		}
		var gl, hl float64
		cl := 0
		for b := 0; b < nb-1; b++ {
			gl += hg[b]
			hl += hh[b]
			cl += hc[b]
			cr := len(c.idx) - cl
			if cl < minSamples || cr < minSamples {
				continue
			}
			gR, hR := c.g-gl, c.h-hl
			if hl < gr.cfg.minChildWeight || hR < gr.cfg.minChildWeight {
				continue
			}
			gain := 0.5 * (gr.score(gl, hl) + gr.score(gR, hR) - parent)
			if gain > 1e-12 && gain > best.gain {
				best = split{ok: true, feature: f, bin: b, gain: gain}
			}
		}
	}
	return best
}
