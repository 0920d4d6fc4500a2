package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/catalogkit/pkg/logger"
)

type ctxKey string

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults to JSON output", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf))
		log.Info("hello")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "hello", rec["msg"])
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatText))
		log.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			logger.New(logger.WithFormat(logger.Format("xml")))
		})
	})

	t.Run("level filters records", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))
		log.Info("dropped")
		assert.Empty(t, buf.String())
	})

	t.Run("static attrs applied to every record", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithAttr(slog.String("component", "billing")),
		)
		log.Info("hello")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "billing", rec["component"])
	})
}

func TestContextExtraction(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	key := ctxKey("request_id")
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithContextValue("request_id", key),
	)

	ctx := context.WithValue(context.Background(), key, "req-42")
	log.InfoContext(ctx, "traced")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-42", rec["request_id"])
}

func TestEnvironmentPresets(t *testing.T) {
	t.Parallel()

	t.Run("production uses JSON and service attrs", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithProduction("billing"))
		log.Info("hello")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "billing", rec["service"])
		assert.Equal(t, "production", rec["env"])
	})

	t.Run("development enables debug level", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithDevelopment("billing"))
		log.Debug("verbose")
		assert.Contains(t, buf.String(), "verbose")
	})
}
