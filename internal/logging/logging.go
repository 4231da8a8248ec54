// Package logging defines the logging sink shared by yapi components.
package logging

import (
	"io"

	"github.com/charmbracelet/log"
)

// Logger is the subset of *log.Logger that components log through.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

// New returns a logger writing to w at info level, or debug level when
// verbose is set.
func New(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: "yapi",
		Level:  level,
	})
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return log.New(io.Discard)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard()
	}
	return l
}
