package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"LISTEN_ADDR", "HTTP_LOGGING", "ENABLE_PPROF", "LOG_LEVEL", "LOG_FORMAT",
		"MIXPANEL_DEV_SDK_KEY", "MIXPANEL_PROD_SDK_KEY", "MIXPANEL_API_HOST",
		"CLUSTER_LOOKUP_TIMEOUT", "FORWARD_TIMEOUT", "MAX_BODY_SIZE",
		"REPORT_RATE_LIMIT", "REPORT_RATE_BURST",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.False(t, cfg.HttpLogging)
	assert.False(t, cfg.EnablePprof)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.DevSDKKey)
	assert.Empty(t, cfg.ProdSDKKey)
	assert.Equal(t, 20*time.Second, cfg.ClusterLookupTimeout)
	assert.Equal(t, 10*time.Second, cfg.ForwardTimeout)
	assert.Equal(t, int64(64*1024), cfg.MaxBodySize)
	assert.Zero(t, cfg.RateLimit)
	assert.Equal(t, 50, cfg.RateBurst)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("HTTP_LOGGING", "true")
	t.Setenv("MIXPANEL_DEV_SDK_KEY", "dev-key")
	t.Setenv("MIXPANEL_PROD_SDK_KEY", "prod-key")
	t.Setenv("CLUSTER_LOOKUP_TIMEOUT", "3s")
	t.Setenv("MAX_BODY_SIZE", "1024")
	t.Setenv("REPORT_RATE_LIMIT", "2.5")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.True(t, cfg.HttpLogging)
	assert.Equal(t, "dev-key", cfg.DevSDKKey)
	assert.Equal(t, "prod-key", cfg.ProdSDKKey)
	assert.Equal(t, 3*time.Second, cfg.ClusterLookupTimeout)
	assert.Equal(t, int64(1024), cfg.MaxBodySize)
	assert.InDelta(t, 2.5, cfg.RateLimit, 0.0001)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HTTP_LOGGING", "maybe")
	t.Setenv("FORWARD_TIMEOUT", "soon")
	t.Setenv("MAX_BODY_SIZE", "-5")
	t.Setenv("REPORT_RATE_BURST", "lots")

	cfg := Load()

	assert.False(t, cfg.HttpLogging)
	assert.Equal(t, 10*time.Second, cfg.ForwardTimeout)
	assert.Equal(t, int64(64*1024), cfg.MaxBodySize)
	assert.Equal(t, 50, cfg.RateBurst)
}
