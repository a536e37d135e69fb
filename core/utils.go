package core

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults used when the corresponding environment variables are not set.
const (
	DefaultDataDir  = "../datasets"
	DefaultBaseURL  = "http://ann-benchmarks.com"
	DefaultEmbedURL = "http://localhost:8090"
)

// Config holds the settings shared by all commands.
type Config struct {
	DataDir  string // directory holding cached datasets and tensor files
	BaseURL  string // ann-benchmarks mirror
	EmbedURL string // embedding service
	Threads  int    // worker count handed to index builders
	RetryMax int    // download retries, 0 means a single attempt
}

// LoadConfig reads the configuration from ANNPREP_* environment variables.
func LoadConfig() Config {
	return Config{
		DataDir:  envString("ANNPREP_DATA_DIR", DefaultDataDir),
		BaseURL:  strings.TrimRight(envString("ANNPREP_BASE_URL", DefaultBaseURL), "/"),
		EmbedURL: strings.TrimRight(envString("ANNPREP_EMBED_URL", DefaultEmbedURL), "/"),
		Threads:  envInt("ANNPREP_THREADS", runtime.NumCPU()),
		RetryMax: envInt("ANNPREP_RETRY_MAX", 0),
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Warn().Msgf("Failed to parse %s value: %s", key, v)
		return fallback
	}
	return n
}

// GetSeed receives a seed value for random number generation from the ANNPREP_SEED environment variable.
func GetSeed() int64 {
	seedStr := os.Getenv("ANNPREP_SEED")
	if seedStr != "" {
		if seed, err := strconv.ParseInt(seedStr, 10, 64); err == nil {
			log.Debug().Msgf("Using seed from ANNPREP_SEED value: %d", seed)
			return seed
		}
		log.Warn().Msgf("Failed to parse ANNPREP_SEED value: %s", seedStr)
	}

	seed := time.Now().UnixNano()
	log.Debug().Msgf("Using current time as seed: %d", seed)
	return seed
}
