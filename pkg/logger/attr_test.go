package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/catalogkit/pkg/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns empty attr", func(t *testing.T) {
		t.Parallel()
		attr := logger.Error(nil)
		assert.Equal(t, slog.Attr{}, attr)
	})

	t.Run("non-nil error returns error attr", func(t *testing.T) {
		t.Parallel()
		err := errors.New("boom")
		attr := logger.Error(err)
		assert.Equal(t, "error", attr.Key)
	})
}

func TestErrors(t *testing.T) {
	t.Parallel()

	t.Run("all nil returns empty attr", func(t *testing.T) {
		t.Parallel()
		attr := logger.Errors(nil, nil)
		assert.Equal(t, slog.Attr{}, attr)
	})

	t.Run("mixed errors groups non-nil", func(t *testing.T) {
		t.Parallel()
		attr := logger.Errors(errors.New("a"), nil, errors.New("b"))
		assert.Equal(t, "errors", attr.Key)
		assert.Len(t, attr.Value.Group(), 2)
	})
}

func TestCorrelationAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "subscription_id", logger.SubscriptionID("sub_1").Key)
	assert.Equal(t, slog.Attr{}, logger.SubscriptionID(nil))

	assert.Equal(t, "store_id", logger.StoreID("st_1").Key)
	assert.Equal(t, slog.Attr{}, logger.StoreID(nil))

	assert.Equal(t, "user_id", logger.UserID("u_1").Key)
	assert.Equal(t, slog.Attr{}, logger.UserID(nil))

	assert.Equal(t, "trigger", logger.Trigger("payment_succeeded").Key)
	assert.Equal(t, "version", logger.Version(3).Key)
}

func TestTransition(t *testing.T) {
	t.Parallel()

	attr := logger.Transition("trialing", "active")
	assert.Equal(t, "transition", attr.Key)

	group := attr.Value.Group()
	assert.Len(t, group, 2)
	assert.Equal(t, "from", group[0].Key)
	assert.Equal(t, "trialing", group[0].Value.String())
	assert.Equal(t, "to", group[1].Key)
	assert.Equal(t, "active", group[1].Value.String())
}
