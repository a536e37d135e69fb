// Package rpt builds a random projection forest and refines it into a
// k-nearest-neighbor graph by nearest neighbor descent.
package rpt

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// Defaults applied by Build when the corresponding field is zero.
const (
	DefaultNeighbors     = 30
	DefaultDelta         = 0.001
	DefaultMaxCandidates = 50
	maxTrees             = 32
)

// Forest is a random projection forest with a k-nearest-neighbor graph over the training points.
type Forest struct {
	NTrees      int     // trees in the forest, derived from the point count when zero
	LeafSize    int     // points per leaf, max(10, Neighbors) when zero
	Neighbors   int     // graph degree
	Iterations  int     // descent rounds, derived from the point count when zero
	Delta       float64 // stop when fewer than Delta*n*Neighbors updates happen in a round
	ProbeMargin float64 // hyperplane margin within which a search follows both children
	Jobs        int     // worker goroutines, overridden by BuildOptions.Threads
	Verbose     bool    // show progress, also enabled by BuildOptions.Log

	// MaxCandidates caps the fresh and old candidate lists of each point per
	// descent round; longer lists are sampled down.
	MaxCandidates int

	mu           sync.RWMutex
	dimension    int
	distance     core.DistanceFunc
	distanceName string
	points       [][]float32
	trees        []*treeNode
	graph        []*neighborList
}

// New creates an empty forest for vectors of the given dimension.
func New(dimension int, distanceName string) (*Forest, error) {
	distance, ok := core.Distances[distanceName]
	if !ok {
		return nil, errors.Newf("unknown distance %q", distanceName)
	}
	return &Forest{
		Neighbors:     DefaultNeighbors,
		Delta:         DefaultDelta,
		MaxCandidates: DefaultMaxCandidates,
		dimension:     dimension,
		distance:      distance,
		distanceName:  distanceName,
	}, nil
}

func (f *Forest) nTrees(n int) int {
	if f.NTrees > 0 {
		return f.NTrees
	}
	return min(maxTrees, 5+int(math.Round(math.Pow(float64(n), 0.25))))
}

func (f *Forest) nIterations(n int) int {
	if f.Iterations > 0 {
		return f.Iterations
	}
	return max(5, int(math.Round(math.Log2(float64(max(n, 1))))))
}

func (f *Forest) leafSize() int {
	if f.LeafSize > 0 {
		return f.LeafSize
	}
	return max(10, f.Neighbors)
}

// Build grows the forest over vectors and runs nearest neighbor descent on the leaf graph.
func (f *Forest) Build(vectors [][]float32, opts core.BuildOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.points != nil {
		return errors.New("forest is already built")
	}
	for i, v := range vectors {
		if len(v) != f.dimension {
			return errors.Wrapf(core.ErrShapeMismatch, "vector %d has dimension %d, forest has %d",
				i, len(v), f.dimension)
		}
	}
	jobs := f.Jobs
	if opts.Threads > 0 {
		jobs = opts.Threads
	}
	jobs = max(jobs, 1)
	verbose := f.Verbose || opts.Log
	if f.Neighbors <= 0 {
		f.Neighbors = DefaultNeighbors
	}

	f.points = vectors
	if f.distanceName == "cosine" || f.distanceName == "angular" {
		f.points = make([][]float32, len(vectors))
		for i, v := range vectors {
			f.points[i] = append([]float32(nil), v...)
		}
		core.NormalizeBatch(f.points, jobs)
	}
	if len(vectors) == 0 {
		return nil
	}

	nTrees := f.nTrees(len(vectors))
	log.Debug().Msgf("Creating RP forest with %d trees, leaf size %d, %d jobs", nTrees, f.leafSize(), jobs)
	f.trees = f.growTrees(nTrees, jobs, verbose)

	f.graph = make([]*neighborList, len(f.points))
	for i := range f.graph {
		f.graph[i] = newNeighborList(min(f.Neighbors, len(f.points)-1))
	}
	f.initFromLeaves()
	f.fillRandom()
	f.descend(jobs, verbose)
	return nil
}

// growTrees builds nTrees trees on jobs goroutines, each with its own seeded source.
func (f *Forest) growTrees(nTrees, jobs int, verbose bool) []*treeNode {
	var bar *progressbar.ProgressBar
	if verbose {
		bar = progressbar.Default(int64(nTrees), "rp trees")
	}
	seed := core.GetSeed()
	trees := make([]*treeNode, nTrees)
	work := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range work {
				rnd := rand.New(rand.NewSource(seed + int64(t)))
				ids := rnd.Perm(len(f.points))
				trees[t] = buildTree(ids, f.points, f.leafSize(), rnd, 0)
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}()
	}
	for t := 0; t < nTrees; t++ {
		work <- t
	}
	close(work)
	wg.Wait()
	return trees
}

// initFromLeaves links every pair of points sharing a leaf.
func (f *Forest) initFromLeaves() {
	for _, tree := range f.trees {
		for _, leaf := range tree.leaves(nil) {
			for i, p := range leaf {
				for _, q := range leaf[i+1:] {
					d := f.distance(f.points[p], f.points[q])
					f.graph[p].push(q, d)
					f.graph[q].push(p, d)
				}
			}
		}
	}
}

// fillRandom tops up lists the leaves left short with random points.
func (f *Forest) fillRandom() {
	rnd := rand.New(rand.NewSource(core.GetSeed()))
	for p, l := range f.graph {
		for attempts := 0; !l.full() && attempts < 4*l.k; attempts++ {
			q := rnd.Intn(len(f.points))
			if q != p {
				l.push(q, f.distance(f.points[p], f.points[q]))
			}
		}
	}
}

// update is a proposed edge found by a local join.
type update struct {
	p, q int
	dist float64
}

// descend runs rounds of local joins until the update count falls below the delta threshold.
func (f *Forest) descend(jobs int, verbose bool) {
	n := len(f.points)
	iterations := f.nIterations(n)
	threshold := int(f.Delta * float64(n*f.Neighbors))
	rnd := rand.New(rand.NewSource(core.GetSeed()))
	for it := 0; it < iterations; it++ {
		fresh, old := f.candidates(rnd)
		updates := f.localJoins(fresh, old, jobs)
		changed := 0
		for _, u := range updates {
			if f.graph[u.p].push(u.q, u.dist) {
				changed++
			}
			if f.graph[u.q].push(u.p, u.dist) {
				changed++
			}
		}
		if verbose {
			log.Info().Msgf("NN descent iteration %d/%d: %d updates", it+1, iterations, changed)
		}
		if changed <= threshold {
			break
		}
	}
}

// candidates splits every list into fresh and old neighbor sets, including
// reverse edges, and marks the fresh entries as used. Each set keeps at most
// MaxCandidates ids, chosen by reservoir sampling with rnd.
func (f *Forest) candidates(rnd *rand.Rand) (fresh, old [][]int) {
	n := len(f.points)
	limit := f.MaxCandidates
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	fresh, old = make([][]int, n), make([][]int, n)
	seenFresh, seenOld := make([]int, n), make([]int, n)
	sample := func(lists [][]int, seen []int, p, id int) {
		seen[p]++
		if len(lists[p]) < limit {
			lists[p] = append(lists[p], id)
		} else if j := rnd.Intn(seen[p]); j < limit {
			lists[p][j] = id
		}
	}
	for p, l := range f.graph {
		for i := range l.entries {
			e := &l.entries[i]
			if e.fresh {
				sample(fresh, seenFresh, p, e.id)
				sample(fresh, seenFresh, e.id, p)
				e.fresh = false
			} else {
				sample(old, seenOld, p, e.id)
				sample(old, seenOld, e.id, p)
			}
		}
	}
	return fresh, old
}

// localJoins compares fresh candidates with each other and with old ones, in parallel chunks.
func (f *Forest) localJoins(fresh, old [][]int, jobs int) []update {
	n := len(f.points)
	chunk := (n + jobs - 1) / jobs
	parts := make([][]update, jobs)
	var wg sync.WaitGroup
	for w := 0; w < jobs; w++ {
		start, end := w*chunk, min((w+1)*chunk, n)
		if start >= end {
			break
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			var out []update
			for p := start; p < end; p++ {
				for i, u := range fresh[p] {
					for _, v := range fresh[p][i+1:] {
						out = f.propose(out, u, v)
					}
					for _, v := range old[p] {
						out = f.propose(out, u, v)
					}
				}
			}
			parts[w] = out
		}(w, start, end)
	}
	wg.Wait()

	var all []update
	for _, part := range parts {
		all = append(all, part...)
	}
	return all
}

// propose appends the edge u-v when it would improve either endpoint's list.
// The lists are only read here; updates are applied after all joins finish.
func (f *Forest) propose(out []update, u, v int) []update {
	if u == v {
		return out
	}
	d := f.distance(f.points[u], f.points[v])
	if f.graph[u].accepts(d) || f.graph[v].accepts(d) {
		out = append(out, update{u, v, d})
	}
	return out
}

// Search returns the k nearest neighbors of query among the candidates found
// by probing every tree and expanding one hop through the graph.
func (f *Forest) Search(query []float32, k int) ([]core.Neighbor, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(query) != f.dimension {
		return nil, errors.Wrapf(core.ErrShapeMismatch, "query dimension %d does not match forest dimension %d",
			len(query), f.dimension)
	}
	if len(f.points) == 0 {
		return nil, errors.New("forest is empty")
	}
	if f.distanceName == "cosine" || f.distanceName == "angular" {
		query = append([]float32(nil), query...)
		core.NormalizeVector(query)
	}

	seen := make(map[int]bool)
	var ids []int
	for _, tree := range f.trees {
		for _, id := range tree.probe(query, f.ProbeMargin, nil) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	for _, id := range ids {
		for _, e := range f.graph[id].entries {
			if !seen[e.id] {
				seen[e.id] = true
				ids = append(ids, e.id)
			}
		}
	}
	if len(ids) < k {
		for id := range f.points {
			if !seen[id] {
				ids = append(ids, id)
			}
		}
	}

	neighbors := make([]core.Neighbor, len(ids))
	for i, id := range ids {
		neighbors[i] = core.Neighbor{ID: id, Distance: f.distance(query, f.points[id])}
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance == neighbors[j].Distance {
			return neighbors[i].ID < neighbors[j].ID
		}
		return neighbors[i].Distance < neighbors[j].Distance
	})
	return neighbors[:min(k, len(neighbors))], nil
}

// Graph returns the neighbor ids of point p, closest first.
func (f *Forest) Graph(p int) []int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]int, len(f.graph[p].entries))
	for i, e := range f.graph[p].entries {
		ids[i] = e.id
	}
	return ids
}

// Stats returns some basic statistics about the forest.
func (f *Forest) Stats() core.IndexStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return core.IndexStats{
		Count:     len(f.points),
		Dimension: f.dimension,
		Distance:  f.distanceName,
	}
}

var _ core.Builder = (*Forest)(nil)
