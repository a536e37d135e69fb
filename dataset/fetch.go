package dataset

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/patrikhermansson/annprep/core"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// Fetcher downloads ann-benchmarks archives into Dir unless they are already cached.
type Fetcher struct {
	Dir      string      // cache directory
	BaseURL  string      // archive mirror, without trailing slash
	Policy   CachePolicy // cache reuse policy
	Progress bool        // show a byte progress bar while downloading

	client *retryablehttp.Client

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFetcher creates a fetcher from the shared configuration.
func NewFetcher(cfg core.Config) *Fetcher {
	return &Fetcher{
		Dir:      cfg.DataDir,
		BaseURL:  cfg.BaseURL,
		Progress: true,
		client:   core.NewHTTPClient(cfg.RetryMax),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lock returns the mutex serialising fetches of one dataset.
func (f *Fetcher) lock(name string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks == nil {
		f.locks = make(map[string]*sync.Mutex)
	}
	l, ok := f.locks[name]
	if !ok {
		l = &sync.Mutex{}
		f.locks[name] = l
	}
	return l
}

// Path returns where the archive for name is cached.
func (f *Fetcher) Path(name string) string {
	return DatasetPath(f.Dir, name, ExtHDF5)
}

// Fetch returns the local path of the archive for name, downloading it first
// when it is not cached. A cache hit performs no network access.
func (f *Fetcher) Fetch(ctx context.Context, name string) (string, error) {
	if !validName(name) {
		return "", errors.Newf("invalid dataset name %q", name)
	}
	l := f.lock(name)
	l.Lock()
	defer l.Unlock()

	path := f.Path(name)
	fresh, err := f.Policy.Fresh(path)
	if err != nil {
		return "", errors.Wrapf(err, "stat %s", path)
	}
	if fresh {
		log.Debug().Msgf("Dataset %s found in cache at %s", name, path)
		return path, nil
	}

	log.Info().Msgf("Dataset %s is not cached; downloading now ...", name)
	if err := f.download(ctx, DatasetURL(f.BaseURL, name), path); err != nil {
		return "", errors.Wrapf(err, "fetch %s", name)
	}
	return path, nil
}

// Open fetches name if needed and opens the archive for reading.
func (f *Fetcher) Open(ctx context.Context, name string) (*Archive, error) {
	path, err := f.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	return OpenArchive(path)
}

// download streams url into a temporary file next to dst and renames it into
// place once the body has been fully written.
func (f *Fetcher) download(ctx context.Context, url, dst string) error {
	client := f.client
	if client == nil {
		client = core.NewHTTPClient(0)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "GET %s", url), core.ErrDownload)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(core.ErrDownload, "GET %s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrap(err, "create cache directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if f.Progress {
		bar := progressbar.DefaultBytes(resp.ContentLength, "downloading "+filepath.Base(dst))
		w = io.MultiWriter(tmp, bar)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		tmp.Close()
		return errors.Mark(errors.Wrap(err, "read response body"), core.ErrDownload)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temporary file")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrap(err, "rename into cache")
	}
	log.Info().Msgf("Downloaded %d bytes to %s", n, dst)
	return nil
}
