package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. It is a no-op until Setup is called.
var Logger = zap.NewNop()

// Setup builds the service logger, installs it as Logger and returns it.
// Production builds emit JSON; debug builds use the console encoder.
func Setup(service, env string, debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		fields = append(fields, zap.String("env", env))
	}
	logger = logger.With(fields...)

	Logger = logger
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// OrDefault returns l when set, falling back to Logger.
func OrDefault(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	return Logger
}
