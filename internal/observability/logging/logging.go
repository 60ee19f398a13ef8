package logging

import (
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. "prod" and "production" select the JSON
// production encoder, anything else a colored development console.
func New(env string) (*zap.Logger, func() error) {
	var logger *zap.Logger
	if IsProduction(env) {
		logger = zap.Must(zap.NewProduction())
	} else {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger = zap.Must(config.Build())
	}
	return logger, logger.Sync
}

// IsProduction reports whether env names a production deployment.
func IsProduction(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

// Slog exposes logger through log/slog for packages that take a *slog.Logger.
func Slog(logger *zap.Logger) *slog.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return slog.New(zapslog.NewHandler(logger.Core()))
}
