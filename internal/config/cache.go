package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig selects where PERSCOM resource families are cached. "memory"
// keeps them in-process; "redis" shares them between replicas and falls
// back to memory when Redis cannot be reached. TTL is the freshness window
// of a family and Prefix namespaces the Redis keys.
type CacheConfig struct {
	Backend string
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads CACHE_* variables. Unknown backends mean memory.
func LoadCacheConfig() CacheConfig {
	backend := strings.ToLower(strings.TrimSpace(getenv("CACHE_BACKEND", "memory")))
	if backend != "redis" {
		backend = "memory"
	}
	return CacheConfig{
		Backend: backend,
		TTL:     parseDur(getenv("CACHE_TTL", "5m")),
		Prefix:  getenv("CACHE_PREFIX", "perscom"),
	}
}

// Helper functions reused from redis.go
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

// parseDur falls back to the 5 minute family TTL on bad input.
func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
