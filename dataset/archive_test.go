package dataset

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/hdf5"
)

// writeHDF5 creates an ann-benchmarks style archive with float32 train,
// float64 test and int32 neighbors datasets.
func writeHDF5(t *testing.T, path string) {
	t.Helper()
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	require.NoError(t, err)
	defer f.Close()

	write := func(name string, dtype *hdf5.Datatype, dims []uint, data interface{}) {
		space, err := hdf5.CreateSimpleDataspace(dims, nil)
		require.NoError(t, err)
		defer space.Close()
		dset, err := f.CreateDataset(name, dtype, space)
		require.NoError(t, err)
		defer dset.Close()
		require.NoError(t, dset.Write(data))
	}

	train := []float32{1, 2, 3, 4, 5, 6}
	test := []float64{0.5, 1.5, 2.5}
	neighbors := []int32{0, 1, 1, 0}
	vector := []float32{1, 2, 3}
	write("train", hdf5.T_NATIVE_FLOAT, []uint{2, 3}, &train)
	write("test", hdf5.T_NATIVE_DOUBLE, []uint{1, 3}, &test)
	write("neighbors", hdf5.T_NATIVE_INT32, []uint{2, 2}, &neighbors)
	write("flat", hdf5.T_NATIVE_FLOAT, []uint{3}, &vector)
}

func TestArchiveMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny-3-euclidean.hdf5")
	writeHDF5(t, path)

	a, err := OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()

	names, err := a.Names()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"train", "test", "neighbors", "flat"}, names)

	train, err := a.Matrix("train")
	require.NoError(t, err)
	require.Equal(t, core.F32, train.DType)
	require.Equal(t, [2]int{2, 3}, train.Shape())
	require.Equal(t, []float32{4, 5, 6}, train.Row(1))

	test, err := a.Matrix("test")
	require.NoError(t, err)
	require.Equal(t, core.F32, test.DType)
	require.Equal(t, []float32{0.5, 1.5, 2.5}, test.F32)

	neighbors, err := a.Matrix("neighbors")
	require.NoError(t, err)
	require.Equal(t, core.I32, neighbors.DType)
	require.Equal(t, []int32{0, 1, 1, 0}, neighbors.I32)

	_, err = a.Matrix("flat")
	require.True(t, errors.Is(err, core.ErrShape))

	_, err = a.Matrix("distances")
	require.True(t, errors.Is(err, core.ErrNotFound))
}

func TestArchiveRepeatedReadsReleaseHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny-3-euclidean.hdf5")
	writeHDF5(t, path)

	for round := 0; round < 3; round++ {
		a, err := OpenArchive(path)
		require.NoError(t, err)
		for i := 0; i < 200; i++ {
			m, err := a.Matrix("train")
			require.NoError(t, err)
			require.Equal(t, [2]int{2, 3}, m.Shape())
			_, err = a.Matrix("flat")
			require.True(t, errors.Is(err, core.ErrShape))
		}
		require.NoError(t, a.Close())
	}
}
