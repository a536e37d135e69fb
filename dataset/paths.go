// Package dataset fetches ann-benchmarks archives into a local cache and
// exposes their named matrices.
package dataset

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Archive file extensions used in the cache directory.
const (
	ExtHDF5        = "hdf5"
	ExtSafetensors = "safetensors"
)

// DatasetPath returns the cache location <dir>/<name>.<ext>.
func DatasetPath(dir, name, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s", name, ext))
}

// DatasetURL returns <baseURL>/<name>.hdf5.
func DatasetURL(baseURL, name string) string {
	return fmt.Sprintf("%s/%s.%s", strings.TrimRight(baseURL, "/"), name, ExtHDF5)
}

// validName rejects names that would escape the cache directory.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`)
}
