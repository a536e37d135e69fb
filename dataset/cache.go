package dataset

import (
	"os"
	"time"
)

// CachePolicy decides whether a cached file can be reused. The zero value
// trusts any file that exists, which is the behavior of the benchmark scripts.
type CachePolicy struct {
	// MaxAge marks files older than this as stale. Zero disables the check.
	MaxAge time.Duration

	// Now is the clock used for the age check. Nil means time.Now.
	Now func() time.Time
}

// Fresh reports whether path exists and is usable under the policy.
func (p CachePolicy) Fresh(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if p.MaxAge <= 0 {
		return true, nil
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().Sub(info.ModTime()) <= p.MaxAge, nil
}
