package log

import (
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultLogFilePath  = "./logs/workhub.log"
	defaultMaxSizeBytes = 20 * 1024 * 1024
	envLogFilePath      = "LOG_FILE_PATH"
	envLogMaxSizeMB     = "LOG_MAX_SIZE_MB"
	envLogFormat        = "LOG_FORMAT"
	envLogLevel         = "LOG_LEVEL"
	logFormatText       = "text"
	logFormatJSON       = "json"
)

var global atomic.Pointer[zerolog.Logger]

func init() {
	l := newLoggerFromEnv()
	global.Store(&l)
}

func newLoggerFromEnv() zerolog.Logger {
	path := strings.TrimSpace(os.Getenv(envLogFilePath))
	if path == "" {
		path = defaultLogFilePath
	}

	maxSizeBytes := int64(defaultMaxSizeBytes)
	if raw := strings.TrimSpace(os.Getenv(envLogMaxSizeMB)); raw != "" {
		if sizeMB, err := strconv.Atoi(raw); err == nil && sizeMB > 0 {
			maxSizeBytes = int64(sizeMB) * 1024 * 1024
		}
	}
	format := strings.ToLower(strings.TrimSpace(os.Getenv(envLogFormat)))
	if format != logFormatJSON {
		format = logFormatText
	}

	var console io.Writer = os.Stdout
	if format == logFormatText {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano}
	}
	file := NewRotatingFile(path, maxSizeBytes)
	return New(zerolog.MultiLevelWriter(console, file), os.Getenv(envLogLevel))
}

// New builds a logger writing to w. Tests pass io.Discard or a buffer.
func New(w io.Writer, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
}

// SetLogger replaces the package logger.
func SetLogger(l zerolog.Logger) {
	global.Store(&l)
}

// Logger returns the package logger for structured use.
func Logger() *zerolog.Logger {
	return global.Load()
}

func Debugf(format string, args ...any) {
	logf(global.Load().Debug(), format, args...)
}

func Infof(format string, args ...any) {
	logf(global.Load().Info(), format, args...)
}

func Warnf(format string, args ...any) {
	logf(global.Load().Warn(), format, args...)
}

func Errorf(format string, args ...any) {
	logf(global.Load().Error(), format, args...)
}

// Exceptionf logs at error level and marks the entry as an exception.
func Exceptionf(format string, args ...any) {
	logf(global.Load().Error().Bool("exception", true), format, args...)
}

func logf(ev *zerolog.Event, format string, args ...any) {
	if ev == nil {
		return
	}
	ev.Str("caller", callerFuncName(3)).Msgf(format, args...)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "silent", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func callerFuncName(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	parts := strings.Split(fn.Name(), "/")
	return parts[len(parts)-1]
}
