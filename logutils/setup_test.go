package logutils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/minelist/status-sync/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		l, err := NewLogger(&config.Log{Level: "debug", Mode: "dev"})
		require.NoError(t, err)
		assert.NotNil(t, l)
	})

	t.Run("invalid mode", func(t *testing.T) {
		_, err := NewLogger(&config.Log{Level: "info", Mode: "verbose"})
		assert.ErrorIs(t, err, ErrLoggerInvalidMode)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewLogger(&config.Log{Level: "loud", Mode: "prod"})
		assert.ErrorIs(t, err, ErrLoggerInvalidLevel)
	})
}

func TestContextWithFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := ContextWithLogger(context.Background(), zap.New(core))
	ctx = ContextWithFields(ctx, zap.String("server_slug", "alpha"))

	LoggerFromContext(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "alpha", logs.All()[0].ContextMap()["server_slug"])
}

func TestHttpServerErrorLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewHttpServerErrorLogger(zap.New(core))

	l.Printf("http: TLS handshake error\n")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "http: TLS handshake error", logs.All()[0].ContextMap()["error"])
}
