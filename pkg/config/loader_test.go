package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/catalogkit/pkg/config"
)

type cacheTestConfig struct {
	TTL      time.Duration `env:"TEST_CACHE_TTL" envDefault:"5m"`
	Capacity int           `env:"TEST_CACHE_CAPACITY" envDefault:"1000"`
}

type requiredTestConfig struct {
	APIKey string `env:"TEST_REQUIRED_API_KEY,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		var cfg cacheTestConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 5*time.Minute, cfg.TTL)
		assert.Equal(t, 1000, cfg.Capacity)
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("TEST_CACHE_TTL", "30s")

		// The type was already cached by the previous subtest, so the
		// override must not leak in - Load returns the first parsed value.
		var cfg cacheTestConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 5*time.Minute, cfg.TTL)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[cacheTestConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})

	t.Run("missing required variable", func(t *testing.T) {
		var cfg requiredTestConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on failure", func(t *testing.T) {
		assert.Panics(t, func() {
			var cfg requiredTestConfig
			config.MustLoad(&cfg)
		})
	})
}
