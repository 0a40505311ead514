package logflags

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logger of a layer of nview.
type Logger interface {
	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger

	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debug(args ...interface{})
	Error(args ...interface{})
}

// Fields are attached to every message of a Logger.
type Fields map[string]interface{}

// LoggerFactory creates the logger of a layer. Out is the destination set
// by --log-dest, nil when logs go to standard error.
type LoggerFactory func(level logrus.Level, fields Fields, out io.Writer) Logger

var loggerFactory LoggerFactory

// SetLoggerFactory makes lf the function that creates loggers. A nil lf
// restores the logrus loggers.
func SetLoggerFactory(lf LoggerFactory) {
	loggerFactory = lf
}

// entryLogger is a Logger writing to a logrus entry.
type entryLogger struct {
	e *logrus.Entry
}

func newEntryLogger(level logrus.Level, fields Fields, out io.Writer) entryLogger {
	l := logrus.New()
	l.Formatter = textFormatterInstance
	l.Level = level
	if out != nil {
		l.Out = out
	}
	return entryLogger{l.WithFields(logrus.Fields(fields))}
}

func (l entryLogger) WithField(key string, value interface{}) Logger {
	return entryLogger{l.e.WithField(key, value)}
}

func (l entryLogger) WithFields(fields Fields) Logger {
	return entryLogger{l.e.WithFields(logrus.Fields(fields))}
}

func (l entryLogger) WithError(err error) Logger {
	return entryLogger{l.e.WithError(err)}
}

func (l entryLogger) Debugf(format string, args ...interface{}) { l.e.Debugf(format, args...) }
func (l entryLogger) Warnf(format string, args ...interface{})  { l.e.Warnf(format, args...) }
func (l entryLogger) Errorf(format string, args ...interface{}) { l.e.Errorf(format, args...) }
func (l entryLogger) Debug(args ...interface{})                 { l.e.Debug(args...) }
func (l entryLogger) Error(args ...interface{})                 { l.e.Error(args...) }
