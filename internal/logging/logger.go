package logging

import (
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option configures NewLogger.
type Option func(*options)

type options struct {
	provider log.LoggerProvider
}

// WithLoggerProvider sets the OTEL provider used when Config.OTEL is on.
// The default is the global provider.
func WithLoggerProvider(lp log.LoggerProvider) Option {
	return func(o *options) { o.provider = lp }
}

// NewLogger creates a logger from config. A nil cfg uses NewDefaultConfig.
func NewLogger(cfg *Config, opts ...Option) (*zap.Logger, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	var out io.Writer = os.Stderr
	if cfg.Output == OutputStdout {
		out = os.Stdout
	}
	return newLogger(cfg, zapcore.AddSync(out), opts...)
}

func newLogger(cfg *Config, ws zapcore.WriteSyncer, opts ...Option) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	core, err := newCore(cfg, ws, o.provider)
	if err != nil {
		return nil, err
	}

	zapOpts := []zap.Option{}
	if cfg.Caller.Enabled {
		zapOpts = append(zapOpts, zap.AddCaller(), zap.AddCallerSkip(cfg.Caller.Skip))
	}
	if cfg.Stacktrace.Level != 0 {
		zapOpts = append(zapOpts, zap.AddStacktrace(cfg.Stacktrace.Level))
	}

	logger := zap.New(core, zapOpts...)

	if len(cfg.Fields) > 0 {
		fields := make([]zap.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		logger = logger.With(fields...)
	}

	return logger, nil
}

// newCore builds the writer core and, when cfg.OTEL is set, tees it into the
// OTEL log bridge. Sampling wraps both.
func newCore(cfg *Config, ws zapcore.WriteSyncer, provider log.LoggerProvider) (zapcore.Core, error) {
	encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
	}
	core := zapcore.NewCore(encoder, ws, cfg.Level)

	if cfg.OTEL {
		if provider == nil {
			provider = global.GetLoggerProvider()
		}
		otelCore := otelzap.NewCore("github.com/fyrsmithlabs/fixstore",
			otelzap.WithLoggerProvider(provider),
		)
		core = zapcore.NewTee(core, levelFilter(otelCore, cfg.Level))
	}

	return newSampledCore(core, cfg.Sampling), nil
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}
