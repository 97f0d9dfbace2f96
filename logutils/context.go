package logutils

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type contextKey string

const loggerContextKey contextKey = "logger"

func ContextWithLogger(parent context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(parent, loggerContextKey, logger)
}

// ContextWithFields derives a context whose logger carries extra fields.
func ContextWithFields(parent context.Context, fields ...zap.Field) context.Context {
	return ContextWithLogger(parent, LoggerFromContext(parent).With(fields...))
}

func LoggerFromContext(ctx context.Context) *zap.Logger {
	if l, found := ctx.Value(loggerContextKey).(*zap.Logger); found {
		return l
	}
	return zap.L()
}

func RequestWithLogger(parent *http.Request, logger *zap.Logger) *http.Request {
	return parent.WithContext(
		ContextWithLogger(parent.Context(), logger),
	)
}

func LoggerFromRequest(request *http.Request) *zap.Logger {
	return LoggerFromContext(request.Context())
}
