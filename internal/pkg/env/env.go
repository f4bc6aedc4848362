// Package env provides utilities for working with environment variables.
package env

import (
	"os"
	"time"
)

// Get returns the value of the environment variable or the default if not set.
func Get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetDuration parses the environment variable with time.ParseDuration, falling
// back to the default when unset or malformed.
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return d
}
