// Package config handles configuration loading from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// ListenAddr is the address:port the server listens on.
	ListenAddr string

	// HttpLogging enables the per-request access log.
	HttpLogging bool

	// EnablePprof mounts the net/http/pprof handlers under /debug/pprof/.
	EnablePprof bool

	LogLevel  string
	LogFormat string

	// DevSDKKey and ProdSDKKey are the fallback analytics credentials used
	// when a document's cluster detail cannot be resolved.
	DevSDKKey  string
	ProdSDKKey string

	// MixpanelAPIHost overrides the analytics API host, e.g. for a proxy.
	MixpanelAPIHost string

	// ClusterLookupTimeout bounds a single cluster metadata request.
	ClusterLookupTimeout time.Duration

	// ForwardTimeout bounds a single analytics submission.
	ForwardTimeout time.Duration

	// MaxBodySize is the largest report body accepted, in bytes.
	MaxBodySize int64

	// RateLimit is the number of reports per second accepted. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		HttpLogging: getEnvBool("HTTP_LOGGING", false),
		EnablePprof: getEnvBool("ENABLE_PPROF", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DevSDKKey:       os.Getenv("MIXPANEL_DEV_SDK_KEY"),
		ProdSDKKey:      os.Getenv("MIXPANEL_PROD_SDK_KEY"),
		MixpanelAPIHost: os.Getenv("MIXPANEL_API_HOST"),

		ClusterLookupTimeout: getEnvDuration("CLUSTER_LOOKUP_TIMEOUT", 20*time.Second),
		ForwardTimeout:       getEnvDuration("FORWARD_TIMEOUT", 10*time.Second),

		MaxBodySize: getEnvInt64("MAX_BODY_SIZE", 64*1024),

		RateLimit: getEnvFloat("REPORT_RATE_LIMIT", 0),
		RateBurst: int(getEnvInt64("REPORT_RATE_BURST", 50)),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if n, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f >= 0 {
		return f
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
