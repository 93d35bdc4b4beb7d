package env

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// lookup returns the trimmed value of key, or false when unset or blank
func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// GetStringFromFile prefers the content of the file named by key_FILE
// (docker and kubernetes secrets) and falls back to key itself
func GetStringFromFile(key, defaultValue string) string {
	if path, ok := lookup(key + "_FILE"); ok {
		if content, err := os.ReadFile(filepath.Clean(path)); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return GetString(key, defaultValue)
}

func GetString(key, defaultValue string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return defaultValue
}

// GetInt falls back to defaultValue when the value is not an integer
func GetInt(key string, defaultValue int) int {
	return parse(key, defaultValue, strconv.Atoi)
}

// GetDuration accepts time.ParseDuration syntax such as "10s" or "1500ms"
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	return parse(key, defaultValue, time.ParseDuration)
}

// GetSlice splits a comma-separated value, dropping empty items
func GetSlice(key string, defaultValue []string) []string {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func parse[T any](key string, defaultValue T, fn func(string) (T, error)) T {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	parsed, err := fn(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}
