// Package logger builds the zap logger and carries request-scoped loggers in contexts.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is attached to every log line.
const Service = "finrag"

// Options select the logger flavour. Empty Level and Format fall back to the
// environment's defaults.
type Options struct {
	Env    string
	Level  string // debug, info, warn, error
	Format string // json, console
}

// New builds a logger writing to stderr so CLI output on stdout stays clean.
//
//	prod              json, info
//	local/dev/docker  colored console, debug
//	test              console, warn
func New(opts Options) (*zap.Logger, error) {
	level, format, err := envDefaults(opts.Env)
	if err != nil {
		return nil, err
	}
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}
	if opts.Format != "" {
		format = opts.Format
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
		if opts.Env != "test" {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.InitialFields = map[string]any{"service": Service, "env": opts.Env}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

func envDefaults(env string) (zapcore.Level, string, error) {
	switch env {
	case "prod":
		return zapcore.InfoLevel, "json", nil
	case "local", "dev", "docker":
		return zapcore.DebugLevel, "console", nil
	case "test":
		return zapcore.WarnLevel, "console", nil
	}
	return 0, "", fmt.Errorf("unknown environment %q for logger", env)
}
