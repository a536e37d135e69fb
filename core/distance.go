package core

import (
	"math"
	"strings"
)

// Distances is a map of human-readable names to distance functions.
var Distances = map[string]DistanceFunc{
	"euclidean":         Euclidean,
	"squared_euclidean": SquaredEuclidean,
	"cosine":            CosineDistance,
	"angular":           CosineDistance,
}

// DistanceForDataset picks the metric from an ann-benchmarks dataset name
// such as "mnist-784-euclidean" or "glove-25-angular".
func DistanceForDataset(name string) (string, DistanceFunc) {
	for _, suffix := range []string{"angular", "euclidean"} {
		if strings.HasSuffix(name, suffix) {
			return suffix, Distances[suffix]
		}
	}
	return "euclidean", Euclidean
}

// Euclidean computes the Euclidean (L2) distance between two vectors.
func Euclidean(a, b []float32) float64 {
	return math.Sqrt(SquaredEuclidean(a, b))
}

// SquaredEuclidean computes the squared Euclidean distance between two vectors.
func SquaredEuclidean(a, b []float32) float64 {
	checkPair(a, b)
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// CosineDistance computes 1 - cosine similarity. Zero vectors are at distance 1.
func CosineDistance(a, b []float32) float64 {
	checkPair(a, b)
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func checkPair(a, b []float32) {
	if len(a) == 0 || len(b) == 0 {
		panic("vectors must not be empty")
	}
	if len(a) != len(b) {
		panic("vectors must have the same length")
	}
}
