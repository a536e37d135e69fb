package core

// Builder is an index that can be bulk-built from a training split and then queried.
// The benchmark harness only times Build; Search is used for recall checks.
type Builder interface {

	// Build inserts all vectors, using ids 0..len(vectors)-1.
	Build(vectors [][]float32, opts BuildOptions) error

	// Search returns the ids and distances of the k nearest neighbors for a query vector.
	Search(query []float32, k int) ([]Neighbor, error)

	// Stats returns metadata about the index, such as count and dimensionality.
	Stats() IndexStats
}

// BuildOptions are handed to a Builder unchanged.
type BuildOptions struct {
	Threads int  // number of worker goroutines, values below 1 mean 1
	Log     bool // show progress while building
}

// DistanceFunc computes the distance between two vectors.
type DistanceFunc func(a, b []float32) float64

// Neighbor holds a neighbor's id and its computed distance.
type Neighbor struct {
	ID       int
	Distance float64
}

// IndexStats contains metadata about the index.
type IndexStats struct {
	Count     int    // total number of indexed vectors
	Dimension int    // dimensionality of vectors
	Distance  string // name of the distance metric
}
