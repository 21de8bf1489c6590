// Package log provides the process-wide structured logger used by every
// component of the voting core. It wraps github.com/rs/zerolog behind a
// small, stable API so call sites never import zerolog directly.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"
)

const logTestWriterName = "test"

var (
	logger  zerolog.Logger
	level   zerolog.Level
	initMu  sync.Mutex
	initted bool

	// panicOnInvalidChars makes Debugf/Infof/... panic when the formatted
	// message contains a non-printable byte. Used by tests to catch
	// accidental binary data leaking into human logs; disabled by default.
	panicOnInvalidChars = false

	// logTestWriter, when non-nil, overrides the output writer. Used only
	// by tests that pass "test" as the output argument to Init.
	logTestWriter io.Writer
)

// Init configures the global logger. level is one of
// debug/info/warn/error/fatal/panic. output is "stdout", "stderr", or a
// file path; the special value "test" (or logTestWriterName) routes output
// to logTestWriter when the caller has set one, and is used only by tests.
// extra, when non-nil, additionally receives every log line.
func Init(levelStr, output string, extra io.Writer) {
	initMu.Lock()
	defer initMu.Unlock()

	lvl, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	level = lvl

	var w io.Writer
	switch output {
	case "stderr":
		w = os.Stderr
	case "stdout", "":
		w = os.Stdout
	case logTestWriterName:
		if logTestWriter != nil {
			w = logTestWriter
		} else {
			w = os.Stdout
		}
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			w = os.Stdout
		} else {
			w = f
		}
	}

	if extra != nil {
		w = zerolog.MultiLevelWriter(w, extra)
	}

	logger = zerolog.New(w).Level(lvl).With().Timestamp().Caller().Logger()
	initted = true
}

func ensureInit() {
	initMu.Lock()
	already := initted
	initMu.Unlock()
	if !already {
		Init("info", "stderr", nil)
	}
}

func checkPrintable(s string) {
	if !panicOnInvalidChars {
		return
	}
	for _, r := range s {
		if r == unicode.ReplacementChar || (!unicode.IsPrint(r) && !unicode.IsSpace(r)) {
			panic(fmt.Sprintf("log message contains non-printable character: %q", s))
		}
	}
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) {
	ensureInit()
	msg := fmt.Sprintf(format, args...)
	checkPrintable(msg)
	logger.Debug().Msg(msg)
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) {
	ensureInit()
	msg := fmt.Sprintf(format, args...)
	checkPrintable(msg)
	logger.Info().Msg(msg)
}

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) {
	ensureInit()
	msg := fmt.Sprintf(format, args...)
	checkPrintable(msg)
	logger.Warn().Msg(msg)
}

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) {
	ensureInit()
	msg := fmt.Sprintf(format, args...)
	checkPrintable(msg)
	logger.Error().Msg(msg)
}

// Fatalf logs a formatted message at fatal level and exits the process.
func Fatalf(format string, args ...any) {
	ensureInit()
	logger.Fatal().Msg(fmt.Sprintf(format, args...))
}

// Error logs an error value at error level.
func Error(err error) {
	ensureInit()
	logger.Error().Err(err).Msg(err.Error())
}

// withFields fans out (key, value, key, value, ...) pairs onto an event.
func withFields(ev *zerolog.Event, keysAndValues ...any) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		ev = ev.Interface(key, keysAndValues[i+1])
	}
	return ev
}

// Debugw logs msg at debug level with structured key/value pairs.
func Debugw(msg string, keysAndValues ...any) {
	ensureInit()
	withFields(logger.Debug(), keysAndValues...).Msg(msg)
}

// Infow logs msg at info level with structured key/value pairs.
func Infow(msg string, keysAndValues ...any) {
	ensureInit()
	withFields(logger.Info(), keysAndValues...).Msg(msg)
}

// Warnw logs msg at warn level with structured key/value pairs.
func Warnw(msg string, keysAndValues ...any) {
	ensureInit()
	withFields(logger.Warn(), keysAndValues...).Msg(msg)
}

// Errorw logs msg at error level with structured key/value pairs.
func Errorw(msg string, keysAndValues ...any) {
	ensureInit()
	withFields(logger.Error(), keysAndValues...).Msg(msg)
}

// Level returns the currently configured log level.
func Level() zerolog.Level {
	return level
}
