package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupEnv treats a variable set to the empty string as unset.
func lookupEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func GetEnvAsInt(key string, defaultVal int) int {
	if value, ok := lookupEnv(key); ok {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultVal
}

func GetEnvAsUint64(key string, defaultVal uint64) uint64 {
	if value, ok := lookupEnv(key); ok {
		if result, err := strconv.ParseUint(value, 10, 64); err == nil {
			return result
		}
	}
	return defaultVal
}

// GetEnvAsDuration parses values like "90s" or "48h".
func GetEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value, ok := lookupEnv(key); ok {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultVal
}

func GetEnvAsBool(key string, defaultVal bool) bool {
	if value, ok := lookupEnv(key); ok {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultVal
}

func GetEnvAsString(key string, defaultVal string) string {
	if value, ok := lookupEnv(key); ok {
		return value
	}
	return defaultVal
}

// GetEnvAsList splits a comma separated variable, dropping empty items.
func GetEnvAsList(key string) []string {
	value, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
