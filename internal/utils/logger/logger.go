package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global *zap.SugaredLogger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the console logger used by every package. It is safe to call
// more than once; the last call wins.
func Init(logLevel string) error {
	if err := SetLogLevel(logLevel); err != nil {
		return err
	}

	cfg := zap.Config{
		Level:            level,
		Development:      false,
		Encoding:         "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			MessageKey:     "msg",
			CallerKey:      "",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
			EncodeDuration: zapcore.StringDurationEncoder,
		},
	}

	z, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	global = z.Sugar()
	zap.ReplaceGlobals(z)
	return nil
}

// SetLogLevel changes the level of the running logger. An empty string keeps
// the current level.
func SetLogLevel(logLevel string) error {
	if logLevel == "" {
		return nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(logLevel))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	level.SetLevel(l)
	return nil
}

// Level returns the active log level name.
func Level() string {
	return level.Level().String()
}

// Logger returns the global sugared logger, or a no-op logger before Init.
func Logger() *zap.SugaredLogger {
	if global == nil {
		return zap.NewNop().Sugar()
	}
	return global
}

// Sync flushes buffered log entries.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}
