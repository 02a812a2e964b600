// Package logger provides process-wide logging for the shelby CLI.
// Warnings and errors are always written; debug and info messages
// only appear in verbose mode, enabled via the --verbose flag.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	level             = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	base              = build(output)
)

// redactedKeys are field names whose values never reach the log.
var redactedKeys = []string{"api_key", "apikey", "token", "secret", "password", "authorization"}

func build(w io.Writer) *zap.SugaredLogger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	enc.CallerKey = ""
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core).Sugar()
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.WarnLevel)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build(w)
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debug logs a printf-style message in verbose mode.
func Debug(format string, args ...any) {
	current().Debugf(format, args...)
}

// Info logs a printf-style message in verbose mode.
func Info(format string, args ...any) {
	current().Infof(format, args...)
}

// Warn logs a printf-style warning.
func Warn(format string, args ...any) {
	current().Warnf(format, args...)
}

// Error logs a printf-style error.
func Error(format string, args ...any) {
	current().Errorf(format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// With returns a structured logger carrying the given key/value pairs.
// Values of secret-looking keys are replaced with [REDACTED].
func With(keysAndValues ...any) *zap.SugaredLogger {
	return current().With(sanitize(keysAndValues)...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = current().Sync()
}

// sanitize redacts values whose key looks like a secret.
func sanitize(kv []any) []any {
	out := make([]any, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if isRedacted(key) {
			out[i+1] = "[REDACTED]"
		}
	}
	return out
}

func isRedacted(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, r := range redactedKeys {
		if strings.Contains(k, r) {
			return true
		}
	}
	return false
}
