package dataset

import (
	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/hdf5"
	"golang.org/x/exp/constraints"
)

// Archive is a read-only handle on a cached ann-benchmarks HDF5 file.
type Archive struct {
	path string
	file *hdf5.File
}

// OpenArchive opens the HDF5 file at path for reading.
func OpenArchive(path string) (*Archive, error) {
	file, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, errors.Wrapf(err, "open archive %s", path)
	}
	return &Archive{path: path, file: file}, nil
}

// Path returns the file the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Close releases the HDF5 file handle.
func (a *Archive) Close() error {
	return a.file.Close()
}

// Names lists the top-level objects in the archive.
func (a *Archive) Names() ([]string, error) {
	n, err := a.file.NumObjects()
	if err != nil {
		return nil, errors.Wrap(err, "count objects")
	}
	names := make([]string, 0, n)
	for i := uint(0); i < n; i++ {
		name, err := a.file.ObjectNameByIndex(i)
		if err != nil {
			return nil, errors.Wrapf(err, "object %d", i)
		}
		names = append(names, name)
	}
	return names, nil
}

// Matrix reads the named 2-D dataset. Floating point data is returned as F32
// (float64 archives are narrowed, as ann-benchmarks features are float32 at
// heart); integer data such as "neighbors" is returned as I32.
func (a *Archive) Matrix(name string) (*core.Matrix, error) {
	dataset, err := a.file.OpenDataset(name)
	if err != nil {
		return nil, errors.Wrapf(core.ErrNotFound, "dataset %q in %s: %v", name, a.path, err)
	}
	defer dataset.Close()

	space := dataset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, errors.Wrapf(err, "dimensions of %q", name)
	}
	if len(dims) != 2 {
		return nil, errors.Wrapf(core.ErrShape, "dataset %q has rank %d, expected 2", name, len(dims))
	}
	rows, cols := int(dims[0]), int(dims[1])

	datatype, err := dataset.Datatype()
	if err != nil {
		return nil, errors.Wrapf(err, "datatype of %q", name)
	}
	defer datatype.Close()
	byteSize := datatype.Size()

	log.Debug().Msgf("Reading %q from %s: %d x %d, %d-byte %v", name, a.path, rows, cols, byteSize, datatype.Class())

	switch datatype.Class() {
	case hdf5.T_FLOAT:
		switch byteSize {
		case 4:
			data := make([]float32, rows*cols)
			if err := dataset.Read(&data); err != nil {
				return nil, errors.Wrapf(err, "read %q", name)
			}
			return &core.Matrix{Rows: rows, Cols: cols, DType: core.F32, F32: data}, nil
		case 8:
			data := make([]float64, rows*cols)
			if err := dataset.Read(&data); err != nil {
				return nil, errors.Wrapf(err, "read %q", name)
			}
			return &core.Matrix{Rows: rows, Cols: cols, DType: core.F32, F32: convert[float64, float32](data)}, nil
		}
	case hdf5.T_INTEGER:
		switch byteSize {
		case 4:
			data := make([]int32, rows*cols)
			if err := dataset.Read(&data); err != nil {
				return nil, errors.Wrapf(err, "read %q", name)
			}
			return &core.Matrix{Rows: rows, Cols: cols, DType: core.I32, I32: data}, nil
		case 8:
			data := make([]int64, rows*cols)
			if err := dataset.Read(&data); err != nil {
				return nil, errors.Wrapf(err, "read %q", name)
			}
			return &core.Matrix{Rows: rows, Cols: cols, DType: core.I32, I32: convert[int64, int32](data)}, nil
		}
	}
	return nil, errors.Wrapf(core.ErrDType, "dataset %q has %d-byte %v elements", name, byteSize, datatype.Class())
}

// convert narrows or widens a flat chunk element by element.
func convert[S, D constraints.Integer | constraints.Float](in []S) []D {
	out := make([]D, len(in))
	for i, v := range in {
		out[i] = D(v)
	}
	return out
}
