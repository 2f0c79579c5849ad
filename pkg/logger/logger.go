package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	*logrus.Logger
}

func NewLogger(verbose bool) *Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})

	l := &Logger{Logger: log}
	l.SetVerbose(verbose)
	return l
}

// NewDiscard returns a logger that drops every entry. Handy for tests.
func NewDiscard() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Logger{Logger: log}
}

// Verbose reports whether debug entries are currently emitted.
func (l *Logger) Verbose() bool {
	return l.IsLevelEnabled(logrus.DebugLevel)
}

// SetVerbose switches between debug and info level.
func (l *Logger) SetVerbose(verbose bool) {
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
}

// Component returns an entry tagged with the emitting component.
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}
