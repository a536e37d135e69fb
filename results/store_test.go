package results

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/patrikhermansson/annprep/bench"
	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "runs", "bench.db"))
	require.NoError(t, err)
	defer s.Close()

	recall := 0.93
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	runs := []bench.Result{
		{RunID: uuid.NewString(), Dataset: "gist-960-euclidean", Builder: "rpt", Threads: 2,
			Vectors: 1000, Dimension: 960, BuildSeconds: 1.5, CPU: "avx2", CreatedAt: t0},
		{RunID: uuid.NewString(), Dataset: "gist-960-euclidean", Builder: "hnsw", Threads: 4,
			Vectors: 1000, Dimension: 960, BuildSeconds: 2.25, Recall: &recall, CPU: "avx2", CreatedAt: t0.Add(time.Minute)},
		{RunID: uuid.NewString(), Dataset: "mnist-784-euclidean", Builder: "hnsw", Threads: 1,
			Vectors: 10, Dimension: 784, BuildSeconds: 0.01, CPU: "fallback", CreatedAt: t0},
	}
	for _, r := range runs {
		require.NoError(t, s.Record(ctx, r))
	}

	got, err := s.List(ctx, "gist-960-euclidean")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, runs[0].RunID, got[0].RunID)
	require.Nil(t, got[0].Recall)
	require.NotNil(t, got[1].Recall)
	require.Equal(t, 0.93, *got[1].Recall)
	require.True(t, got[1].CreatedAt.Equal(t0.Add(time.Minute)))
	require.Equal(t, 960, got[1].Dimension)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRecordRejectsDuplicatesAndEmptyID(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "bench.db"))
	require.NoError(t, err)
	defer s.Close()

	r := bench.Result{RunID: "run-1", Dataset: "d", Builder: "hnsw", CPU: "fallback", CreatedAt: time.Now()}
	require.NoError(t, s.Record(ctx, r))
	require.Error(t, s.Record(ctx, r))
	require.Error(t, s.Record(ctx, bench.Result{}))
}

func TestReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bench.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, bench.Result{RunID: "a", Dataset: "d", Builder: "rpt", CPU: "avx2", CreatedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.List(ctx, "d")
	require.NoError(t, err)
	require.Len(t, got, 1)
}
