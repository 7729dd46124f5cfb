// Package config loads process configuration from the environment.
package config

import (
	"log"
	"net/url"
	"os"
	"strconv"
)

// Env retrieves an environment variable or returns defaultValue.
func Env(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// EnvInt retrieves an environment variable as an integer, falling back to
// defaultValue (and logging a warning) if it is unset or unparseable.
func EnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("⚠️  WARNING: invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// EnvBool retrieves an environment variable as a boolean, falling back to
// defaultValue (and logging a warning) if it is unset or unparseable.
func EnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		log.Printf("⚠️  WARNING: invalid boolean value for %s: %s, using default: %v", key, value, defaultValue)
	}
	return defaultValue
}

// MaskPassword masks the password component of a database URL for logging.
// Reconstructed manually rather than via url.String() to avoid percent-encoding
// the mask characters.
func MaskPassword(dbURL string) string {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return "[invalid-url]"
	}
	if parsed.User == nil {
		return dbURL
	}
	username := parsed.User.Username()
	if _, hasPassword := parsed.User.Password(); !hasPassword {
		return dbURL
	}

	result := ""
	if parsed.Scheme != "" {
		result = parsed.Scheme + "://"
	}
	result += username + ":****@" + parsed.Host + parsed.Path
	if parsed.RawQuery != "" {
		result += "?" + parsed.RawQuery
	}
	if parsed.Fragment != "" {
		result += "#" + parsed.Fragment
	}
	return result
}
