// Package tree implements CART decision trees: a classifier used on its own
// and inside the random forest, and a regressor used as the gradient boosting
// base learner.
package tree

import (
	"math"
	"math/rand/v2"
	"slices"
)

// Node is one node of a fitted tree stored in a flat slice. Leaves have
// Left == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     []float64 // class fractions, or the mean target for regression
	Impurity  float64
	NSamples  int
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return n.Left < 0 }

// criterion accumulates target statistics while sweeping a sorted feature.
type criterion interface {
	// init resets the right side to hold every sample in idx and empties the left side.
	init(idx []int)
	// move shifts sample i from the right side to the left side.
	move(i int)
	// childImpurity returns left and right impurities.
	childImpurity() (left, right float64)
	// nodeImpurity returns the impurity of all samples passed to init.
	nodeImpurity() float64
	// value returns the leaf prediction for the samples passed to init.
	value() []float64
}

type classCriterion struct {
	y        []int
	nClasses int
	entropy  bool

	total, left []float64
	nTotal      float64
	nLeft       float64
}

func newClassCriterion(y []int, nClasses int, entropy bool) *classCriterion {
	return &classCriterion{
		y:        y,
		nClasses: nClasses,
		entropy:  entropy,
		total:    make([]float64, nClasses),
		left:     make([]float64, nClasses),
	}
}

func (c *classCriterion) init(idx []int) {
	clear(c.total)
	clear(c.left)
	for _, i := range idx {
		c.total[c.y[i]]++
	}
	c.nTotal = float64(len(idx))
	c.nLeft = 0
}

func (c *classCriterion) move(i int) {
	c.left[c.y[i]]++
	c.nLeft++
}

func (c *classCriterion) impurity(counts []float64, n float64, sub []float64) float64 {
	if n == 0 {
		return 0
	}
	imp := 0.0
	if c.entropy {
		for k, cnt := range counts {
			if sub != nil {
				cnt -= sub[k]
			}
			if cnt > 0 {
				p := cnt / n
				imp -= p * math.Log2(p)
			}
		}
		return imp
	}
	sumSq := 0.0
	for k, cnt := range counts {
		if sub != nil {
			cnt -= sub[k]
		}
		p := cnt / n
		sumSq += p * p
	}
	return 1 - sumSq
}

func (c *classCriterion) childImpurity() (float64, float64) {
	return c.impurity(c.left, c.nLeft, nil), c.impurity(c.total, c.nTotal-c.nLeft, c.left)
}

func (c *classCriterion) nodeImpurity() float64 {
	return c.impurity(c.total, c.nTotal, nil)
}

func (c *classCriterion) value() []float64 {
	v := make([]float64, c.nClasses)
	for k, cnt := range c.total {
		v[k] = cnt / c.nTotal
	}
	return v
}

// mseCriterion is the squared-error criterion for regression trees.
type mseCriterion struct {
	y []float64

	sumTotal, sqTotal float64
	sumLeft, sqLeft   float64
	nTotal, nLeft     float64
}

func (c *mseCriterion) init(idx []int) {
	c.sumTotal, c.sqTotal = 0, 0
	for _, i := range idx {
		c.sumTotal += c.y[i]
		c.sqTotal += c.y[i] * c.y[i]
	}
	c.nTotal = float64(len(idx))
	c.sumLeft, c.sqLeft, c.nLeft = 0, 0, 0
}

func (c *mseCriterion) move(i int) {
	c.sumLeft += c.y[i]
	c.sqLeft += c.y[i] * c.y[i]
	c.nLeft++
}

func variance(sum, sq, n float64) float64 {
	if n == 0 {
		return 0
	}
	mean := sum / n
	return math.Max(sq/n-mean*mean, 0)
}

func (c *mseCriterion) childImpurity() (float64, float64) {
	return variance(c.sumLeft, c.sqLeft, c.nLeft),
		variance(c.sumTotal-c.sumLeft, c.sqTotal-c.sqLeft, c.nTotal-c.nLeft)
}

func (c *mseCriterion) nodeImpurity() float64 {
	return variance(c.sumTotal, c.sqTotal, c.nTotal)
}

func (c *mseCriterion) value() []float64 {
	return []float64{c.sumTotal / c.nTotal}
}

// growParams are the stopping rules shared by both tree kinds.
type growParams struct {
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // features examined per split, 0 means all
}

// builder grows a tree depth-first from column-major training data.
type builder struct {
	cols   [][]float64
	crit   criterion
	params growParams
	rng    *rand.Rand

	nodes       []Node
	importances []float64
	depth       int
}

func newBuilder(cols [][]float64, crit criterion, params growParams, rng *rand.Rand) *builder {
	return &builder{
		cols:        cols,
		crit:        crit,
		params:      params,
		rng:         rng,
		importances: make([]float64, len(cols)),
	}
}

type split struct {
	feature   int
	threshold float64
	pos       int // samples [0,pos) of the sorted index go left
	cost      float64
}

const impurityEpsilon = 1e-12

// build grows the subtree for idx and returns its node index.
func (b *builder) build(idx []int, depth int) int {
	b.crit.init(idx)
	impurity := b.crit.nodeImpurity()
	node := Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    b.crit.value(),
		Impurity: impurity,
		NSamples: len(idx),
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, node)
	if depth > b.depth {
		b.depth = depth
	}

	n := len(idx)
	if (b.params.maxDepth > 0 && depth >= b.params.maxDepth) ||
		n < b.params.minSamplesSplit ||
		n < 2*b.params.minSamplesLeaf ||
		impurity <= impurityEpsilon {
		return id
	}

	best, sorted, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	left := append([]int(nil), sorted[:best.pos]...)
	right := append([]int(nil), sorted[best.pos:]...)
	b.importances[best.feature] += float64(n)*impurity - best.cost

	b.nodes[id].Feature = best.feature
	b.nodes[id].Threshold = best.threshold
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit searches candidate features for the split with the lowest
// weighted child impurity. Zero-gain splits are accepted so that patterns
// such as XOR can still be separated deeper in the tree.
func (b *builder) bestSplit(idx []int) (split, []int, bool) {
	features, limit := b.candidateFeatures()
	minLeaf := b.params.minSamplesLeaf
	n := len(idx)

	best := split{cost: math.Inf(1)}
	var bestOrder []int
	order := make([]int, n)
	found := false
	visited := 0

	for _, f := range features {
		// constant features do not count towards the limit, and the search
		// goes on past the limit until some valid split exists
		if visited >= limit && found {
			break
		}
		col := b.cols[f]
		copy(order, idx)
		slices.SortStableFunc(order, func(a, c int) int {
			switch {
			case col[a] < col[c]:
				return -1
			case col[a] > col[c]:
				return 1
			}
			return 0
		})
		if col[order[0]] == col[order[n-1]] {
			continue
		}
		visited++

		b.crit.init(order)
		for pos := 1; pos < n; pos++ {
			b.crit.move(order[pos-1])
			if pos < minLeaf || n-pos < minLeaf {
				continue
			}
			lo, hi := col[order[pos-1]], col[order[pos]]
			if lo == hi {
				continue
			}
			li, ri := b.crit.childImpurity()
			cost := float64(pos)*li + float64(n-pos)*ri
			if cost < best.cost-impurityEpsilon {
				threshold := lo + (hi-lo)/2
				if threshold == hi {
					threshold = lo
				}
				best = split{feature: f, threshold: threshold, pos: pos, cost: cost}
				bestOrder = append(bestOrder[:0], order...)
				found = true
			}
		}
	}
	return best, bestOrder, found
}

// candidateFeatures returns the order in which features are examined and
// how many non-constant ones to examine.
func (b *builder) candidateFeatures() ([]int, int) {
	nFeatures := len(b.cols)
	k := b.params.maxFeatures
	if k <= 0 || k >= nFeatures || b.rng == nil {
		all := make([]int, nFeatures)
		for i := range all {
			all[i] = i
		}
		return all, nFeatures
	}
	return b.rng.Perm(nFeatures), k
}

// normalizedImportances returns importances summing to one, or all zeros
// when the tree never split.
func (b *builder) normalizedImportances() []float64 {
	out := make([]float64, len(b.importances))
	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	if total <= 0 {
		return out
	}
	for i, v := range b.importances {
		out[i] = v / total
	}
	return out
}

// descend returns the leaf index reached by row x.
func descend(nodes []Node, x []float64) int {
	i := 0
	for !nodes[i].IsLeaf() {
		if x[nodes[i].Feature] <= nodes[i].Threshold {
			i = nodes[i].Left
		} else {
			i = nodes[i].Right
		}
	}
	return i
}

func countLeaves(nodes []Node) int {
	n := 0
	for i := range nodes {
		if nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}
