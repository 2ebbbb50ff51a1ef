package utils

import (
	"os"
	"strconv"
)

// EnvOrDefault returns the environment variable named by key, or fallback
// when it is unset or empty.
func EnvOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// EnvOrDefaultInt parses the environment variable named by key as an int.
// Unset, empty or unparsable values yield fallback.
func EnvOrDefaultInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// EnvOrDefaultUint64 parses the environment variable named by key as a
// uint64. Unset, empty or unparsable values yield fallback.
func EnvOrDefaultUint64(key string, fallback uint64) uint64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
