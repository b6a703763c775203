// pkg/logger/logger.go
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "***"

type Options struct {
	Service     string
	Environment string
	Debug       bool
	// Secrets are replaced with *** in messages and string fields.
	Secrets []string
}

// New builds the service logger: JSON with ISO8601 timestamps outside development,
// colored console output in development.
func New(opts Options) *zap.Logger {
	var config zap.Config
	if opts.Environment == "development" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if opts.Debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	config.InitialFields = map[string]interface{}{
		"service": opts.Service,
	}

	logger, err := config.Build(WithRedaction(opts.Secrets...))
	if err != nil {
		panic(err)
	}

	return logger
}

// WithRedaction wraps the core so the given secrets never reach the output.
func WithRedaction(secrets ...string) zap.Option {
	var pairs []string
	for _, s := range secrets {
		if s != "" {
			pairs = append(pairs, s, redacted)
		}
	}
	if len(pairs) == 0 {
		return zap.WrapCore(func(c zapcore.Core) zapcore.Core { return c })
	}

	r := strings.NewReplacer(pairs...)
	return zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return &redactCore{Core: c, r: r}
	})
}

type redactCore struct {
	zapcore.Core
	r *strings.Replacer
}

func (c *redactCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactCore{Core: c.Core.With(c.redact(fields)), r: c.r}
}

func (c *redactCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	e.Message = c.r.Replace(e.Message)
	return c.Core.Write(e, c.redact(fields))
}

func (c *redactCore) redact(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			f.String = c.r.Replace(f.String)
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				f = zap.String(f.Key, c.r.Replace(err.Error()))
			}
		}
		out[i] = f
	}
	return out
}
