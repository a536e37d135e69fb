package core

import "github.com/cockroachdb/errors"

// Sentinel errors shared by the dataset, prep, quantize and tensorfile packages.
// Callers wrap them with context and match with errors.Is.
var (
	// ErrOverWidth is returned when a matrix is wider than the requested padding width.
	ErrOverWidth = errors.New("matrix is wider than target width")

	// ErrShapeMismatch is returned when two splits disagree on their width.
	ErrShapeMismatch = errors.New("matrix shapes do not match")

	// ErrShape is returned when a matrix or dataset does not have the expected rank or size.
	ErrShape = errors.New("unexpected shape")

	// ErrOverflow is returned when a quantized value does not fit into 8 bits.
	ErrOverflow = errors.New("quantized value overflows uint8")

	// ErrDownload is returned when a dataset could not be downloaded.
	ErrDownload = errors.New("dataset download failed")

	// ErrDType is returned for unsupported or mismatched element types.
	ErrDType = errors.New("unsupported dtype")

	// ErrNotFound is returned when a named matrix is missing from an archive or container.
	ErrNotFound = errors.New("matrix not found")
)
