package core

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// ParseLogLevel maps the textual level used in configuration files.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, true
	case "info", "":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	case "fatal":
		return FatalLevel, true
	}
	return InfoLevel, false
}

func (l LogLevel) charm() log.Level {
	switch l {
	case DebugLevel:
		return log.DebugLevel
	case WarnLevel:
		return log.WarnLevel
	case ErrorLevel:
		return log.ErrorLevel
	case FatalLevel:
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

// suppressWarnings silences the warnings emitted for missing uniforms and
// attributes while shaders are being iterated on.
var suppressWarnings atomic.Bool

func getLogger() *logger {
	once.Do(
		func() {
			l := log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				CallerOffset:    1,
				TimeFormat:      time.RFC3339,
				Prefix:          "Twinrender 🎨 ",
			})
			l.SetLevel(log.DebugLevel)
			singleton = &logger{l}
		})
	return singleton
}

func SetLogLevel(level LogLevel) {
	getLogger().SetLevel(level.charm())
}

func SetLogOutput(w io.Writer) {
	getLogger().SetOutput(w)
}

func SuppressWarnings(suppress bool) {
	suppressWarnings.Store(suppress)
}

func WarningsSuppressed() bool {
	return suppressWarnings.Load()
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

// LogShaderWarn is used for lookups of uniforms and attributes that the
// shader compiler may have optimised away. Silenced by SuppressWarnings.
func LogShaderWarn(msg string, args ...interface{}) {
	if suppressWarnings.Load() {
		return
	}
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
