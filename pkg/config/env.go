package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// envVarRefs matches the three shapes of environment reference the config
// loader understands, tried in this order: "${NAME:-default}" (with
// fallback), "${NAME}" (braced), then "$NAME" (bare).
var envVarRefs = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	bare        *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	bare:        regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

// expandEnvVars resolves every environment reference in s, applying the
// three patterns in order so a "${NAME:-default}" is never re-expanded by
// the looser braced/bare patterns afterward.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarRefs.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRefs.withDefault.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})

	s = envVarRefs.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRefs.braced.FindStringSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		return os.Getenv(parts[1])
	})

	s = envVarRefs.bare.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRefs.bare.FindStringSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		return os.Getenv(parts[1])
	})

	return s
}

// coerceScalar converts an expanded string into a bool, int, or float64
// when it parses cleanly as one, leaving it as a string otherwise. This
// lets "${PORT}" in a YAML value resolve to a numeric field instead of a
// quoted string.
func coerceScalar(value string) interface{} {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}

	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}

	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}

	return value
}

// ExpandEnvVarsInData walks a decoded config tree (the output of a YAML or
// JSON unmarshal into interface{}) and expands environment references in
// every string leaf, recursing through maps and slices.
func ExpandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)
		if expanded != v {
			return coerceScalar(expanded)
		}
		return expanded

	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = ExpandEnvVarsInData(value)
		}
		return result

	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = ExpandEnvVarsInData(item)
		}
		return result

	default:
		return v
	}
}

// dotEnvFiles are loaded, in order, before config files are parsed; later
// files never override variables already set by an earlier one or by the
// surrounding shell, matching godotenv's own precedence.
var dotEnvFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads any .env.local / .env file present in the working
// directory into the process environment. Missing files are not an error.
func LoadEnvFiles() error {
	for _, file := range dotEnvFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

// providerAPIKeyEnv names the environment variable each built-in provider
// reads its API key from when a config file leaves reasoning.api_key unset.
var providerAPIKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// GetProviderAPIKey returns the API key for providerType from its
// conventional environment variable, or "" if providerType is unknown or
// the variable is unset.
func GetProviderAPIKey(providerType string) string {
	name, ok := providerAPIKeyEnv[providerType]
	if !ok {
		return ""
	}
	return os.Getenv(name)
}
