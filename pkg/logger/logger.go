package logger

import (
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// ParseLevel converts a level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "notice":
		return NoticeLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// well-known networks get stable colors, anything else is hashed into the palette
var networkColors = map[string]color.Attribute{
	"pendulum":  color.FgHiGreen,
	"amplitude": color.FgMagenta,
	"foucoco":   color.FgYellow,
	"local":     color.FgHiBlue,
}

var palette = []color.Attribute{
	color.FgCyan,
	color.FgBlue,
	color.FgGreen,
	color.FgRed,
	color.FgHiMagenta,
	color.FgHiYellow,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithNetwork(network string, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithNetwork(network string, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithNetwork(network string, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithNetwork(network string, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                        {}
func (l *EmptyLogger) InfoWithNetwork(_ string, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                       {}
func (l *EmptyLogger) ErrorWithNetwork(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                       {}
func (l *EmptyLogger) DebugWithNetwork(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                      {}
func (l *EmptyLogger) NoticeWithNetwork(_ string, _ string, _ ...interface{}) {}

// StdLogger logs messages to the console through the standard log package.
type StdLogger struct {
	enableColoring bool
	level          Level
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
	}
}

func networkColor(network string) color.Attribute {
	if c, ok := networkColors[strings.ToLower(network)]; ok {
		return c
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(network))
	return palette[h.Sum32()%uint32(len(palette))]
}

// formatMessage formats the log message with the level, the network prefix and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, network string, format string) string {
	var networkPrefix string
	if network != "" {
		networkPrefix = "[" + strings.ToUpper(network) + "] "
		if l.enableColoring {
			networkPrefix = color.New(networkColor(network)).Sprint(networkPrefix)
		}
	}

	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}

	return levelStr + networkPrefix + format
}

func (l *StdLogger) logf(level Level, network string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= level {
		log.Printf(l.formatMessage(level, network, format), args...)
	}
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.logf(InfoLevel, "", format, args...)
}

func (l *StdLogger) InfoWithNetwork(network string, format string, args ...interface{}) {
	l.logf(InfoLevel, network, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.logf(ErrorLevel, "", format, args...)
}

func (l *StdLogger) ErrorWithNetwork(network string, format string, args ...interface{}) {
	l.logf(ErrorLevel, network, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.logf(DebugLevel, "", format, args...)
}

func (l *StdLogger) DebugWithNetwork(network string, format string, args ...interface{}) {
	l.logf(DebugLevel, network, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.logf(NoticeLevel, "", format, args...)
}

func (l *StdLogger) NoticeWithNetwork(network string, format string, args ...interface{}) {
	l.logf(NoticeLevel, network, format, args...)
}
