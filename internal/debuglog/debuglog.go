// Package debuglog is the launcher's leveled wrapper around the standard logger.
package debuglog

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type Level uint8

const (
	LevelOff Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelVerbose
	LevelTrace

	UseGlobal Level = 255
)

const envKey = "CLASH_LAUNCHER_DEBUG"

var (
	GlobalLevel = ParseLevel(os.Getenv(envKey))
)

// ParseLevel maps a level name to a Level. Unknown names fall back to info.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace
	case "verbose", "debug":
		return LevelVerbose
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "off":
		return LevelOff
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelVerbose:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

func Log(prefix string, level Level, local Level, format string, args ...interface{}) {
	if !ShouldLog(level, local) {
		return
	}
	message := fmt.Sprintf(format, args...)
	if prefix != "" {
		log.Printf("[%s] %s", prefix, message)
	} else {
		log.Print(message)
	}
}

func ShouldLog(level Level, local Level) bool {
	effective := GlobalLevel
	if local != UseGlobal {
		effective = local
	}
	return level <= effective
}

func ErrorLog(format string, args ...interface{}) {
	Log("ERROR", LevelError, UseGlobal, format, args...)
}

func WarnLog(format string, args ...interface{}) {
	Log("WARN", LevelWarn, UseGlobal, format, args...)
}

func InfoLog(format string, args ...interface{}) {
	Log("INFO", LevelInfo, UseGlobal, format, args...)
}

func DebugLog(format string, args ...interface{}) {
	Log("DEBUG", LevelVerbose, UseGlobal, format, args...)
}

// LogTextFragment logs text, trimming the middle of long payloads so that
// subscription bodies do not flood the log.
func LogTextFragment(prefix string, level Level, description, text string, maxChars int) {
	if !ShouldLog(level, UseGlobal) {
		return
	}
	if len(text) <= maxChars*2 {
		Log(prefix, level, UseGlobal, "%s (len=%d): %q", description, len(text), text)
		return
	}
	Log(prefix, level, UseGlobal, "%s (len=%d): %q ... %q",
		description, len(text), text[:maxChars], text[len(text)-maxChars:])
}

// RunAndLog executes fn and logs a label-prefixed warning if it fails.
func RunAndLog(label string, fn func() error) {
	if err := fn(); err != nil {
		WarnLog("%s: %v", label, err)
	}
}

// CloseWithLog closes c and logs a failure with context. Safe with a nil closer.
func CloseWithLog(name string, c io.Closer) {
	if c == nil {
		return
	}
	RunAndLog(name, c.Close)
}
