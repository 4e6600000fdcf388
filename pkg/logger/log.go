package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	VERBOSE LogLevel = iota
	DEBUG
	INFO
	SUCCESS
	NEW
	REMOVE
	STOP
	WARNING
	ERROR
	FATAL
)

func (e LogLevel) String() string {
	return []string{
		"V",
		"D",
		"I",
		"✓",
		"+",
		"-",
		"X",
		"!",
		"!!",
		"PANIC",
	}[e]
}

func (e LogLevel) Level() int { return int(e) }

func (e LogLevel) Color() *color.Color {
	return []*color.Color{
		color.New(color.FgWhite, color.Italic),                //Verbose
		color.New(color.FgWhite, color.Italic),                //Debug
		color.New(color.FgWhite),                              //Info
		color.New(color.FgHiGreen),                            //Success
		color.New(color.FgGreen, color.Italic),                //New
		color.New(color.FgYellow, color.Italic),               //Remove
		color.New(color.FgHiYellow),                           //Stop
		color.New(color.FgYellow, color.Underline),            //Warning
		color.New(color.FgHiRed, color.Bold),                  //Error
		color.New(color.FgHiRed, color.Bold, color.Underline), //PANIC
	}[e]
}

// ParseLevel converts the textual names used in configuration
// (verbose, debug, info, warning, error) in to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(name) {
	case "verbose", "trace":
		return VERBOSE, nil
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARNING, nil
	case "error":
		return ERROR, nil
	}

	return INFO, fmt.Errorf("unknown log level '%s'", name)
}

type Logger interface {
	Emit(LogLevel, string, ...any)
	Verbosef(string, ...any)
	Debugf(string, ...any)
	Infof(string, ...any)
	Successf(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)
	Fatalf(string, ...any)
	Printf(string, ...any)
}

type loggerImpl struct {
	name string
}

func (l *loggerImpl) Emit(status LogLevel, message string, interpolations ...any) {
	Log.Emit(status, l.name, message, interpolations...)
}

func (l *loggerImpl) Verbosef(m string, a ...any) { l.Emit(VERBOSE, m, a...) }
func (l *loggerImpl) Debugf(m string, a ...any)   { l.Emit(DEBUG, m, a...) }
func (l *loggerImpl) Infof(m string, a ...any)    { l.Emit(INFO, m, a...) }
func (l *loggerImpl) Successf(m string, a ...any) { l.Emit(SUCCESS, m, a...) }
func (l *loggerImpl) Warnf(m string, a ...any)    { l.Emit(WARNING, m, a...) }
func (l *loggerImpl) Errorf(m string, a ...any)   { l.Emit(ERROR, m, a...) }
func (l *loggerImpl) Fatalf(m string, a ...any)   { l.Emit(FATAL, m, a...) }

// Printf satisfies the logger interfaces expected by goose, and
// emits at INFO level.
func (l *loggerImpl) Printf(m string, a ...any) { l.Emit(INFO, m, a...) }

type LoggerManager interface {
	GetLogger(string) Logger
	Emit(LogLevel, string, string, ...any)
}

var _ LoggerManager = Log

var Log = &loggerMgr{
	offset:   0,
	minLevel: INFO,
}

type loggerMgr struct {
	sync.Mutex
	offset   int
	minLevel LogLevel
	sink     io.Writer
}

func (l *loggerMgr) GetLogger(name string) Logger {
	return &loggerImpl{name: name}
}

func (l *loggerMgr) Emit(status LogLevel, name string, message string, interpolations ...any) {
	l.Lock()
	defer l.Unlock()

	if status < l.minLevel {
		return
	}

	l.setNameOffset(len(name))
	padding := strings.Repeat(" ", l.offset-len(name))
	text := fmt.Sprintf(message, interpolations...)
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	status.Color().Printf("[%s] %s(%s) %s", name, padding, status, text)
	if l.sink != nil {
		fmt.Fprintf(l.sink, "%s | %-7s | [%s] %s", time.Now().Format(time.RFC3339), levelName(status), name, text)
	}
}

func (l *loggerMgr) setNameOffset(offset int) {
	if offset > l.offset {
		l.offset = offset
	}
}

// SetMinLoggingLevel drops any log line with a level
// below the one provided.
func SetMinLoggingLevel(level int) {
	Log.Lock()
	defer Log.Unlock()

	Log.minLevel = LogLevel(level)
}

// SetOutputFile mirrors every emitted line (without colour) to the
// file at the path provided, appending if it already exists. An empty
// path disables the file sink. The returned function closes the file.
func SetOutputFile(path string) (func() error, error) {
	Log.Lock()
	defer Log.Unlock()

	if path == "" {
		Log.sink = nil
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	Log.sink = f
	return func() error {
		Log.Lock()
		defer Log.Unlock()

		Log.sink = nil
		return f.Close()
	}, nil
}

func levelName(e LogLevel) string {
	switch {
	case e == FATAL:
		return "FATAL"
	case e == ERROR:
		return "ERROR"
	case e == WARNING:
		return "WARNING"
	case e <= DEBUG:
		return "DEBUG"
	default:
		return "INFO"
	}
}

func Get(name string) Logger {
	return Log.GetLogger(name)
}
