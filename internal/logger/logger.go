// Package logger builds the service zap logger and carries per-request loggers in context.
package logger

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger preset and optional file sink.
type Options struct {
	Env   string
	Level string // overrides the preset level when set
	File  FileConfig
}

var presets = map[string]func() zap.Config{
	"prod":   zap.NewProductionConfig,
	"local":  zap.NewDevelopmentConfig,
	"dev":    zap.NewDevelopmentConfig,
	"docker": zap.NewDevelopmentConfig,
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the logger for opts.Env. prod writes JSON to stderr, the other presets write
// colored console output. With File.Path set the output is also teed into a rotating file.
// The closer releases the file and is safe to call when no file is configured.
func New(opts Options) (*zap.Logger, io.Closer, error) {
	preset, ok := presets[opts.Env]
	if !ok {
		return nil, nil, fmt.Errorf("unknown environment %q for logger", opts.Env)
	}
	cfg := preset()
	if opts.Env != "prod" {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if opts.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel), zap.Fields(zap.String("service", "triage")))
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	if opts.File.Path == "" {
		return l, nopCloser{}, nil
	}
	tee, closer := TeeToFile(l, opts.File)
	return tee, closer, nil
}
