package envutil

import (
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// GetEnvOrFallback gets the environment variable for the specified key, but if
// it doesn't find a value, it'll instead return fallback.
func GetEnvOrFallback(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}
	return value
}

// GetBoolOrFallback parses the environment variable for the specified key as a
// boolean. A missing or malformed value returns fallback, the latter is logged.
func GetBoolOrFallback(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("environment variable is not a boolean")
		return fallback
	}
	return b
}
