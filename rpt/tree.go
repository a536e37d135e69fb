package rpt

import (
	"math"
	"math/rand"
	"sort"
)

// treeNode is a node of a random projection tree. Leaves hold point ids;
// internal nodes hold the splitting hyperplane.
type treeNode struct {
	points     []int
	projection []float32
	threshold  float64
	left       *treeNode
	right      *treeNode
}

func (n *treeNode) isLeaf() bool {
	return n.left == nil && n.right == nil
}

// maxTreeDepth bounds recursion on degenerate data.
const maxTreeDepth = 200

// candidateProjections is the number of random hyperplanes tried per split.
const candidateProjections = 3

// buildTree splits ids recursively along random hyperplanes until leaves hold
// at most leafSize points.
func buildTree(ids []int, points [][]float32, leafSize int, rnd *rand.Rand, depth int) *treeNode {
	if len(ids) <= leafSize || depth >= maxTreeDepth {
		return &treeNode{points: ids}
	}
	dim := len(points[ids[0]])

	type split struct {
		proj      []float32
		threshold float64
		left      []int
		right     []int
	}
	var best *split
	for c := 0; c < candidateProjections; c++ {
		proj := randomUnit(dim, rnd)
		type pair struct {
			id  int
			dot float64
		}
		pairs := make([]pair, len(ids))
		for i, id := range ids {
			pairs[i] = pair{id, dot(points[id], proj)}
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].dot < pairs[j].dot })

		mid := len(pairs) / 2
		threshold := pairs[mid].dot
		s := &split{proj: proj, threshold: threshold}
		for _, p := range pairs {
			if p.dot < threshold {
				s.left = append(s.left, p.id)
			} else {
				s.right = append(s.right, p.id)
			}
		}
		// Ties on the median can empty one side; fall back to an even split in projection order.
		if len(s.left) == 0 || len(s.right) == 0 {
			s.left, s.right = s.left[:0], s.right[:0]
			for i, p := range pairs {
				if i < mid {
					s.left = append(s.left, p.id)
				} else {
					s.right = append(s.right, p.id)
				}
			}
		}
		if best == nil || imbalance(s.left, s.right) < imbalance(best.left, best.right) {
			best = s
		}
	}

	return &treeNode{
		projection: best.proj,
		threshold:  best.threshold,
		left:       buildTree(best.left, points, leafSize, rnd, depth+1),
		right:      buildTree(best.right, points, leafSize, rnd, depth+1),
	}
}

func imbalance(a, b []int) int {
	d := len(a) - len(b)
	if d < 0 {
		return -d
	}
	return d
}

// randomUnit draws a random unit vector.
func randomUnit(dim int, rnd *rand.Rand) []float32 {
	proj := make([]float32, dim)
	var norm float64
	for i := range proj {
		v := rnd.Float32()*2 - 1
		proj[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm < 1e-8 {
		norm = 1
	}
	for i := range proj {
		proj[i] /= float32(norm)
	}
	return proj
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// leaves appends every leaf's point list to out.
func (n *treeNode) leaves(out [][]int) [][]int {
	if n.isLeaf() {
		return append(out, n.points)
	}
	out = n.left.leaves(out)
	return n.right.leaves(out)
}

// probe returns the ids of the leaves reached by query, following both
// children when the query lies within margin of a hyperplane.
func (n *treeNode) probe(query []float32, margin float64, out []int) []int {
	if n.isLeaf() {
		return append(out, n.points...)
	}
	d := dot(query, n.projection)
	if math.Abs(d-n.threshold) < margin {
		out = n.left.probe(query, margin, out)
		return n.right.probe(query, margin, out)
	}
	if d < n.threshold {
		return n.left.probe(query, margin, out)
	}
	return n.right.probe(query, margin, out)
}
