package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvClassifierCandidateLimit = "ATTEST_CLASSIFIER_CANDIDATE_LIMIT"
	EnvClassifierCacheDistance  = "ATTEST_CLASSIFIER_CACHE_DISTANCE"
)

// ClassifierConfig holds the tunable parameters of the classification
// pipeline. Zero values defer to the classifier's built-in defaults.
type ClassifierConfig struct {
	CandidateLimit int     `toml:"candidate_limit"`
	CacheDistance  float64 `toml:"cache_distance"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ClassifierConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ClassifierConfig) Merge(overlay *ClassifierConfig) {
	if overlay.CandidateLimit != 0 {
		c.CandidateLimit = overlay.CandidateLimit
	}
	if overlay.CacheDistance != 0 {
		c.CacheDistance = overlay.CacheDistance
	}
}

func (c *ClassifierConfig) loadDefaults() {
	if c.CandidateLimit == 0 {
		c.CandidateLimit = 5
	}
	if c.CacheDistance == 0 {
		c.CacheDistance = 0.30
	}
}

func (c *ClassifierConfig) loadEnv() {
	if v := os.Getenv(EnvClassifierCandidateLimit); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			c.CandidateLimit = limit
		}
	}
	if v := os.Getenv(EnvClassifierCacheDistance); v != "" {
		if distance, err := strconv.ParseFloat(v, 64); err == nil {
			c.CacheDistance = distance
		}
	}
}

func (c *ClassifierConfig) validate() error {
	if c.CandidateLimit < 1 {
		return fmt.Errorf("invalid candidate_limit: %d", c.CandidateLimit)
	}
	if c.CacheDistance <= 0 || c.CacheDistance > 2 {
		return fmt.Errorf("invalid cache_distance: %f", c.CacheDistance)
	}
	return nil
}
