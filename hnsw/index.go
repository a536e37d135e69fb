// Package hnsw builds a hierarchical navigable small world graph over a training split.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// Defaults for graph connectivity and candidate list sizes.
const (
	DefaultM              = 16
	DefaultEfConstruction = 128
	DefaultEfSearch       = 64
)

// maxLevelCap is the upper bound for a node's level.
const maxLevelCap = 32

// candidate is a node id with its distance to the current query.
type candidate struct {
	id   int
	dist float64
}

func closer(a, b candidate) bool {
	if a.dist == b.dist {
		return a.id < b.id
	}
	return a.dist < b.dist
}

// nearHeap pops the closest candidate first.
type nearHeap []candidate

func (h nearHeap) Len() int            { return len(h) }
func (h nearHeap) Less(i, j int) bool  { return closer(h[i], h[j]) }
func (h nearHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nearHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *nearHeap) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// farHeap pops the farthest candidate first.
type farHeap []candidate

func (h farHeap) Len() int            { return len(h) }
func (h farHeap) Less(i, j int) bool  { return closer(h[j], h[i]) }
func (h farHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *farHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *farHeap) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// node is a graph vertex. links[L] holds neighbor ids on level L.
type node struct {
	mu     sync.RWMutex
	vector []float32
	level  int
	links  [][]int
}

// Index is a graph index built in bulk from ids 0..n-1.
type Index struct {
	M              int // neighbors per node above level 0, twice that on level 0
	EfConstruction int // candidate list size while inserting
	EfSearch       int // candidate list size while searching

	mu           sync.RWMutex
	dimension    int
	distance     core.DistanceFunc
	distanceName string
	nodes        []*node
	entry        int
	maxLevel     int
	rng          *rand.Rand
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int, distanceName string) (*Index, error) {
	distance, ok := core.Distances[distanceName]
	if !ok {
		return nil, errors.Newf("unknown distance %q", distanceName)
	}
	log.Debug().Msgf("Creating HNSW index with dimension=%d, distance=%s", dimension, distanceName)
	return &Index{
		M:              DefaultM,
		EfConstruction: DefaultEfConstruction,
		EfSearch:       DefaultEfSearch,
		dimension:      dimension,
		distance:       distance,
		distanceName:   distanceName,
		maxLevel:       -1,
		rng:            rand.New(rand.NewSource(core.GetSeed())),
	}, nil
}

func (h *Index) normalizes() bool {
	return h.distanceName == "cosine" || h.distanceName == "angular"
}

// randomLevel draws a level from an exponential distribution.
func (h *Index) randomLevel() int {
	if h.M <= 1 {
		return 0
	}
	level := int(-math.Log(1-h.rng.Float64()) / math.Log(float64(h.M)))
	return min(level, maxLevelCap)
}

func (h *Index) maxLinks(level int) int {
	if level == 0 {
		return 2 * h.M
	}
	return h.M
}

// Build inserts every vector using opts.Threads goroutines. Ids are the row indices.
func (h *Index) Build(vectors [][]float32, opts core.BuildOptions) error {
	h.mu.Lock()
	if len(h.nodes) > 0 {
		h.mu.Unlock()
		return errors.New("index is already built")
	}
	for i, v := range vectors {
		if len(v) != h.dimension {
			h.mu.Unlock()
			return errors.Wrapf(core.ErrShapeMismatch, "vector %d has dimension %d, index has %d",
				i, len(v), h.dimension)
		}
	}
	threads := max(opts.Threads, 1)

	h.nodes = make([]*node, len(vectors))
	for i, v := range vectors {
		vec := v
		if h.normalizes() {
			vec = append([]float32(nil), v...)
		}
		level := h.randomLevel()
		h.nodes[i] = &node{vector: vec, level: level, links: make([][]int, level+1)}
	}
	if h.normalizes() {
		vecs := make([][]float32, len(h.nodes))
		for i, n := range h.nodes {
			vecs[i] = n.vector
		}
		core.NormalizeBatch(vecs, threads)
	}
	h.mu.Unlock()
	if len(vectors) == 0 {
		return nil
	}

	var bar *progressbar.ProgressBar
	if opts.Log {
		bar = progressbar.Default(int64(len(vectors)), "hnsw build")
	}
	h.entry, h.maxLevel = 0, h.nodes[0].level
	if bar != nil {
		_ = bar.Add(1)
	}

	ids := make(chan int, threads)
	var wg sync.WaitGroup
	for w := 0; w < threads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				h.insert(id)
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}()
	}
	for id := 1; id < len(vectors); id++ {
		ids <- id
	}
	close(ids)
	wg.Wait()
	log.Debug().Msgf("Built HNSW graph over %d vectors, max level %d", len(vectors), h.maxLevel)
	return nil
}

// neighbors returns a copy of a node's links on level L.
func (h *Index) neighbors(id, level int) []int {
	n := h.nodes[id]
	n.mu.RLock()
	defer n.mu.RUnlock()
	if level >= len(n.links) {
		return nil
	}
	return append([]int(nil), n.links[level]...)
}

// greedy walks level L towards query starting at id until no neighbor is closer.
func (h *Index) greedy(query []float32, id, level int) int {
	best := h.distance(query, h.nodes[id].vector)
	for changed := true; changed; {
		changed = false
		for _, nb := range h.neighbors(id, level) {
			if d := h.distance(query, h.nodes[nb].vector); d < best {
				id, best, changed = nb, d, true
			}
		}
	}
	return id
}

// insert links node id into the graph.
func (h *Index) insert(id int) {
	n := h.nodes[id]
	h.mu.RLock()
	entry, top := h.entry, h.maxLevel
	h.mu.RUnlock()

	current := entry
	for L := top; L > n.level; L-- {
		current = h.greedy(n.vector, current, L)
	}
	for L := min(n.level, top); L >= 0; L-- {
		cands := h.searchLayer(n.vector, current, L, h.EfConstruction)
		selected := selectClosest(cands, h.M)

		n.mu.Lock()
		n.links[L] = selected
		n.mu.Unlock()

		for _, nb := range selected {
			h.link(nb, id, L)
		}
		if len(cands) > 0 {
			current = cands[0].id
		}
	}

	if n.level > top {
		h.mu.Lock()
		if n.level > h.maxLevel {
			h.entry, h.maxLevel = id, n.level
		}
		h.mu.Unlock()
	}
}

// link adds a back-link from node from to node to on level L, trimming to the closest links.
func (h *Index) link(from, to, level int) {
	n := h.nodes[from]
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links[level] = append(n.links[level], to)
	if len(n.links[level]) <= h.maxLinks(level) {
		return
	}
	cands := make([]candidate, len(n.links[level]))
	for i, nb := range n.links[level] {
		cands[i] = candidate{nb, h.distance(n.vector, h.nodes[nb].vector)}
	}
	n.links[level] = selectClosest(cands, h.maxLinks(level))
}

// selectClosest returns the ids of the m closest candidates.
func selectClosest(cands []candidate, m int) []int {
	sort.Slice(cands, func(i, j int) bool { return closer(cands[i], cands[j]) })
	ids := make([]int, 0, min(m, len(cands)))
	for _, c := range cands[:cap(ids)] {
		ids = append(ids, c.id)
	}
	return ids
}

// searchLayer runs a best-first search on one level and returns up to ef candidates, closest first.
func (h *Index) searchLayer(query []float32, entry, level, ef int) []candidate {
	start := candidate{entry, h.distance(query, h.nodes[entry].vector)}
	visited := map[int]bool{entry: true}
	queue := nearHeap{start}
	results := farHeap{start}

	for queue.Len() > 0 {
		current := heap.Pop(&queue).(candidate)
		if current.dist > results[0].dist && results.Len() >= ef {
			break
		}
		for _, nb := range h.neighbors(current.id, level) {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := h.distance(query, h.nodes[nb].vector)
			if results.Len() < ef || d < results[0].dist {
				heap.Push(&queue, candidate{nb, d})
				heap.Push(&results, candidate{nb, d})
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&results).(candidate)
	}
	return out
}

// Search finds the k nearest neighbors of query.
func (h *Index) Search(query []float32, k int) ([]core.Neighbor, error) {
	if len(query) != h.dimension {
		return nil, errors.Wrapf(core.ErrShapeMismatch, "query dimension %d does not match index dimension %d",
			len(query), h.dimension)
	}
	h.mu.RLock()
	entry, top, count := h.entry, h.maxLevel, len(h.nodes)
	h.mu.RUnlock()
	if count == 0 {
		return nil, errors.New("index is empty")
	}

	if h.normalizes() {
		query = append([]float32(nil), query...)
		core.NormalizeVector(query)
	}
	current := entry
	for L := top; L > 0; L-- {
		current = h.greedy(query, current, L)
	}
	cands := h.searchLayer(query, current, 0, max(h.EfSearch, k))

	k = min(k, len(cands))
	results := make([]core.Neighbor, k)
	for i := range results {
		results[i] = core.Neighbor{ID: cands[i].id, Distance: cands[i].dist}
	}
	return results, nil
}

// Stats returns simple statistics about the index.
func (h *Index) Stats() core.IndexStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return core.IndexStats{
		Count:     len(h.nodes),
		Dimension: h.dimension,
		Distance:  h.distanceName,
	}
}

var _ core.Builder = (*Index)(nil)
