package bench

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/schollz/progressbar/v3"
)

// Evaluation summarises the queries run against a built index.
type Evaluation struct {
	Queries      int
	K            int
	Recall       float64       // mean Recall@K
	AvgQuery     time.Duration // mean search latency
	TotalRuntime time.Duration
}

// Evaluate searches every test row with threads workers and compares the
// results to the first k ground-truth neighbors.
func Evaluate(b core.Builder, test, neighbors *core.Matrix, k, threads int, progress bool) (Evaluation, error) {
	if test.DType != core.F32 {
		return Evaluation{}, errors.Wrapf(core.ErrDType, "test is %s, want F32", test.DType)
	}
	if neighbors.DType != core.I32 {
		return Evaluation{}, errors.Wrapf(core.ErrDType, "neighbors is %s, want I32", neighbors.DType)
	}
	if neighbors.Rows != test.Rows {
		return Evaluation{}, errors.Wrapf(core.ErrShapeMismatch, "%d test rows, %d ground-truth rows",
			test.Rows, neighbors.Rows)
	}
	if k <= 0 || test.Rows == 0 {
		return Evaluation{}, errors.Newf("nothing to evaluate: k=%d, %d queries", k, test.Rows)
	}
	threads = max(threads, 1)

	type queryResult struct {
		recall   float64
		duration time.Duration
		err      error
	}
	results := make([]queryResult, test.Rows)

	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.Default(int64(test.Rows), "queries")
	}

	overallStart := time.Now()
	tasks := make(chan int, test.Rows)
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for idx := range tasks {
			start := time.Now()
			res, err := b.Search(test.Row(idx), k)
			results[idx] = queryResult{duration: time.Since(start), err: err}
			if err == nil {
				results[idx].recall = RecallAtK(res, groundTruth(neighbors, idx), k)
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}
	}
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go worker()
	}
	for i := 0; i < test.Rows; i++ {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	ev := Evaluation{Queries: test.Rows, K: k, TotalRuntime: time.Since(overallStart)}
	var total time.Duration
	for i, r := range results {
		if r.err != nil {
			return Evaluation{}, errors.Wrapf(r.err, "query %d", i)
		}
		ev.Recall += r.recall
		total += r.duration
	}
	ev.Recall /= float64(test.Rows)
	ev.AvgQuery = total / time.Duration(test.Rows)
	return ev, nil
}

// groundTruth returns row idx of an I32 neighbors matrix as ints.
func groundTruth(neighbors *core.Matrix, idx int) []int {
	row := neighbors.I32[idx*neighbors.Cols : (idx+1)*neighbors.Cols]
	out := make([]int, len(row))
	for i, id := range row {
		out[i] = int(id)
	}
	return out
}

// RecallAtK is the fraction of the first k ground-truth ids found among the first k predictions.
func RecallAtK(predicted []core.Neighbor, truth []int, k int) float64 {
	if k <= 0 || len(truth) == 0 {
		return 0.0
	}
	truth = truth[:min(k, len(truth))]
	predSet := make(map[int]struct{}, k)
	for _, n := range predicted[:min(k, len(predicted))] {
		predSet[n.ID] = struct{}{}
	}
	correct := 0
	for _, id := range truth {
		if _, ok := predSet[id]; ok {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

// FormatResults renders up to maxResults neighbors as "id=.. (dist=..)" pairs.
func FormatResults(results []core.Neighbor, maxResults int) string {
	s := ""
	for _, n := range results[:min(maxResults, len(results))] {
		s += fmt.Sprintf("id=%d (dist=%.3f) ", n.ID, n.Distance)
	}
	return s
}
