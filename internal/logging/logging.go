// Package logging wraps github.com/hashicorp/go-hclog behind the
// server's Logger contract: a single Write(severity, message) call,
// with severity filtering owned entirely by the underlying logger.
package logging

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
)

// Severity is one of the seven levels the server writes at.
type Severity string

const (
	Trace Severity = "TRACE"
	Debug Severity = "DEBUG"
	Info  Severity = "INFO"
	Warn  Severity = "WARN"
	Error Severity = "ERROR"
	Fatal Severity = "FATAL"
	Off   Severity = "OFF"
)

// Logger is the sink every component (netcore, httpassembler callers,
// console) writes operational events to.
type Logger interface {
	Write(severity string, message string)
}

type hclogLogger struct {
	hl hclog.Logger
}

var severityColor = map[Severity]*color.Color{
	Trace: color.New(color.FgHiBlack),
	Debug: color.New(color.FgCyan),
	Info:  color.New(color.FgGreen),
	Warn:  color.New(color.FgYellow),
	Error: color.New(color.FgRed),
	Fatal: color.New(color.FgHiRed, color.Bold),
}

func (l *hclogLogger) Write(severity, message string) {
	s := Severity(severity)
	if c, ok := severityColor[s]; ok {
		message = c.Sprint(message)
	}
	switch s {
	case Trace:
		l.hl.Trace(message)
	case Debug:
		l.hl.Debug(message)
	case Info:
		l.hl.Info(message)
	case Warn:
		l.hl.Warn(message)
	case Error:
		l.hl.Error(message)
	case Fatal:
		l.hl.Error(message)
		os.Exit(1)
	}
}

// New builds a Logger writing to every sink in w (multiple sinks satisfy
// the console+file fan-out a deployed server wants), at the given
// minimum level.
func New(level Severity, w ...io.Writer) Logger {
	var out io.Writer = os.Stdout
	if len(w) > 0 {
		out = io.MultiWriter(w...)
	}
	hl := hclog.New(&hclog.LoggerOptions{
		Name:   "pulsenetd",
		Level:  toHclogLevel(level),
		Output: out,
		Color:  hclog.ColorOff, // severityColor above already colorizes the message text
	})
	return &hclogLogger{hl: hl}
}

func toHclogLevel(s Severity) hclog.Level {
	switch s {
	case Trace:
		return hclog.Trace
	case Debug:
		return hclog.Debug
	case Info:
		return hclog.Info
	case Warn:
		return hclog.Warn
	case Error, Fatal:
		return hclog.Error
	case Off:
		return hclog.Off
	default:
		return hclog.Info
	}
}

var (
	defaultOnce sync.Once
	defaultPtr  atomic.Pointer[Logger]
)

// Init installs the process-wide default logger. Only the first call
// takes effect; later calls are no-ops, matching init-once/read-many
// global access.
func Init(level Severity, w ...io.Writer) {
	defaultOnce.Do(func() {
		l := New(level, w...)
		defaultPtr.Store(&l)
	})
}

// L returns the process-wide default logger, installing a stdout INFO
// logger on first use if Init was never called.
func L() Logger {
	if p := defaultPtr.Load(); p != nil {
		return *p
	}
	Init(Info)
	return *defaultPtr.Load()
}
