package core

import (
	"math"
	"sync"
)

// NormalizeVector scales vec to unit length in place. Zero vectors are left unchanged.
func NormalizeVector(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}

// NormalizeBatch normalizes multiple vectors using up to workers goroutines.
func NormalizeBatch(vecs [][]float32, workers int) {
	if len(vecs) == 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(vecs) {
		workers = len(vecs)
	}
	chunk := (len(vecs) + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < len(vecs); start += chunk {
		end := min(start+chunk, len(vecs))
		wg.Add(1)
		go func(part [][]float32) {
			defer wg.Done()
			for _, v := range part {
				NormalizeVector(v)
			}
		}(vecs[start:end])
	}
	wg.Wait()
}
