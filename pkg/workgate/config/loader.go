package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FromFile loads coordinator settings from a file, auto-detecting the
// format by extension (.yaml, .yml, or .json). A typical workgate file:
//
//	capacity: 4
//	workers: 8
//	checkout_timeout: 2s
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML settings (capacity, workers, queue_size, the
// timeout keys) into a Config.
func FromYAML(data []byte) (Config, error) {
	return decode("yaml", yaml.Unmarshal, data)
}

// FromJSON parses JSON settings into a Config.
func FromJSON(data []byte) (Config, error) {
	return decode("json", json.Unmarshal, data)
}

// decode unmarshals settings bytes into the generic key map behind
// Config, so the typed Extract step sees one shape regardless of the
// source format.
func decode(format string, unmarshal func([]byte, any) error, data []byte) (Config, error) {
	var m map[string]any
	if err := unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", format, err)
	}
	return New(m), nil
}

// FromEnv builds a Config from environment variables with the given
// prefix. A `.env` file in the working directory is loaded first if
// present (existing environment variables win).
//
// Variable names map to lower-cased keys with the prefix stripped:
// WORKGATE_CAPACITY=4 with prefix "WORKGATE_" yields capacity: 4.
// Values that parse as integers, floats, or booleans are converted;
// everything else stays a string.
func FromEnv(prefix string) Config {
	// Ignore the error: a missing .env file is the common case.
	_ = godotenv.Load()

	m := make(map[string]any)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, prefix))
		m[key] = coerce(value)
	}
	return New(m)
}

// coerce converts an environment string to a typed value where possible.
func coerce(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
