package utils

import (
	"os"
	"strings"
)

// SafeEnv returns the trimmed value of key, or fallback when it is unset or
// blank.
func SafeEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return fallback
}
