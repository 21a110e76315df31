// Package env reads the few process settings needed before config.Load runs.
package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	return First(fallback, key)
}

// First returns the first non-blank value among keys, in order.
func First(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}

// LogFormat is "console" for human-readable local output, otherwise "json".
// HAULBID_LOG_FORMAT wins over the legacy LOG_FORMAT.
func LogFormat() string {
	if strings.EqualFold(First("json", "HAULBID_LOG_FORMAT", "LOG_FORMAT"), "console") {
		return "console"
	}
	return "json"
}
