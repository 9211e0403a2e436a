package logger

import (
	"context"

	"github.com/duespay/duespay/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger. One instance is built at startup and
// injected everywhere; there is no process-wide global.
type Logger struct {
	*zap.SugaredLogger
}

// NewLogger builds the application logger for the given level.
func NewLogger(level string) (*Logger, error) {
	config := zap.NewProductionConfig()
	if level == "debug" {
		config = zap.NewDevelopmentConfig()
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true

	zapLogger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

// NewNopLogger returns a logger that discards everything, for tests.
func NewNopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithContext returns a child logger carrying the request and tenant
// identifiers from ctx on every entry.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(
			"request_id", types.GetRequestID(ctx),
			"tenant_id", types.GetTenantID(ctx),
		),
	}
}

// retryableHTTPLogger adapts Logger to go-retryablehttp's interface.
type retryableHTTPLogger struct {
	logger *Logger
}

func (l *Logger) GetRetryableHTTPLogger() *retryableHTTPLogger {
	return &retryableHTTPLogger{logger: l}
}

func (r *retryableHTTPLogger) Printf(format string, v ...interface{}) {
	r.logger.Debugf(format, v...)
}
