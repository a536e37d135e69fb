package core

import (
	"strconv"
	"testing"
	"time"
)

func TestGetSeedFromEnv(t *testing.T) {
	expectedSeed := int64(12345)
	t.Setenv("ANNPREP_SEED", strconv.FormatInt(expectedSeed, 10))

	seed := GetSeed()
	if seed != expectedSeed {
		t.Errorf("GetSeed() = %d; want %d", seed, expectedSeed)
	}
}

func TestGetSeedFromEnvInvalid(t *testing.T) {
	t.Setenv("ANNPREP_SEED", "invalid")

	seed := GetSeed()
	if seed == 0 {
		t.Errorf("GetSeed() = %d; want non-zero value", seed)
	}
}

func TestGetSeedFromTime(t *testing.T) {
	t.Setenv("ANNPREP_SEED", "")

	seed1 := GetSeed()
	time.Sleep(time.Microsecond)
	seed2 := GetSeed()

	if seed1 == seed2 {
		t.Errorf("GetSeed() = %d; subsequent call returned the same seed %d", seed1, seed2)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"ANNPREP_DATA_DIR", "ANNPREP_BASE_URL", "ANNPREP_EMBED_URL",
		"ANNPREP_THREADS", "ANNPREP_RETRY_MAX"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q; want %q", cfg.DataDir, DefaultDataDir)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q; want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.RetryMax != 0 {
		t.Errorf("RetryMax = %d; want 0", cfg.RetryMax)
	}
	if cfg.Threads < 1 {
		t.Errorf("Threads = %d; want at least 1", cfg.Threads)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ANNPREP_DATA_DIR", "/tmp/datasets")
	t.Setenv("ANNPREP_BASE_URL", "http://mirror.local/")
	t.Setenv("ANNPREP_THREADS", "3")
	t.Setenv("ANNPREP_RETRY_MAX", "not-a-number")

	cfg := LoadConfig()
	if cfg.DataDir != "/tmp/datasets" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.BaseURL != "http://mirror.local" {
		t.Errorf("BaseURL = %q; want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.Threads != 3 {
		t.Errorf("Threads = %d; want 3", cfg.Threads)
	}
	if cfg.RetryMax != 0 {
		t.Errorf("RetryMax = %d; want fallback 0", cfg.RetryMax)
	}
}
