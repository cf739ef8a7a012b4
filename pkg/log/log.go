package log

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

func init() {
	zap.ReplaceGlobals(zap.New(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(config()),
			zapcore.Lock(os.Stdout),
			level,
		),
	))
}

func config() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// Debug logs a debug message with optional key/value pairs.
func Debug(msg string, kv ...interface{}) {
	zap.S().Debugw(msg, kv...)
}

// Info logs an info message with optional key/value pairs.
func Info(msg string, kv ...interface{}) {
	zap.S().Infow(msg, kv...)
}

// Warn logs a warning message with optional key/value pairs.
func Warn(msg string, kv ...interface{}) {
	zap.S().Warnw(msg, kv...)
}

// Error logs an error message with optional key/value pairs.
func Error(msg string, kv ...interface{}) {
	zap.S().Errorw(msg, kv...)
}

// Panic logs a message and then panics.
func Panic(msg string, kv ...interface{}) {
	zap.S().Panicw(msg, kv...)
}

// Fatal logs a message and then calls os.Exit(1).
func Fatal(msg string, kv ...interface{}) {
	zap.S().Fatalw(msg, kv...)
}

// SetLevel sets the global log level. Accepted values are
// debug, info, warn, error, panic and fatal (case-insensitive).
func SetLevel(lvl string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(lvl)))); err != nil {
		return fmt.Errorf("invalid log level: %v", lvl)
	}

	switch l {
	case zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel,
		zapcore.ErrorLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		level.SetLevel(l)
		return nil
	default:
		return fmt.Errorf("invalid log level: %v", lvl)
	}
}

// GetLevel returns the current global log level.
func GetLevel() zapcore.Level {
	return level.Level()
}

// Clean lowercases and trims a string so it can be used as a
// stable log field value.
func Clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
