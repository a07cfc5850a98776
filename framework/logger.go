package framework

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process logger set by InitLogger.
var Log = zap.NewNop()

// InitLogger builds the logger for env: JSON with ISO8601 times in
// production, colored console in development and nothing in test.
func InitLogger(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	switch env {
	case "test":
		logger = zap.NewNop()
	case "production":
		config := zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err := config.Build()
		if err != nil {
			return nil, err
		}
		logger = l
	default:
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		l, err := config.Build()
		if err != nil {
			return nil, err
		}
		logger = l
	}

	Log = logger
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// FromContext returns Log tagged with the request id carried by ctx.
func FromContext(ctx context.Context) *zap.Logger {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return Log.With(zap.String("request_id", reqID))
	}
	return Log
}
