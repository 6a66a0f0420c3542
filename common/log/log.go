package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface shared by all components. It is a thin
// wrapper around logrus so callers never depend on the concrete logger.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	WithFields(fields logrus.Fields) Logger
}

type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type logger struct {
	entry *logrus.Entry
}

// GetLogger builds a Logger from the given configuration. An empty
// configuration yields an info-level text logger on stderr.
func GetLogger(conf *Config) (Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	level := logrus.InfoLevel
	if conf != nil && conf.Level != "" {
		parsed, err := logrus.ParseLevel(conf.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	l.SetLevel(level)

	if conf != nil && strings.EqualFold(conf.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &logger{entry: logrus.NewEntry(l)}, nil
}

// NewTestLogger returns a silent logger for use in tests.
func NewTestLogger() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.PanicLevel)
	return &logger{entry: logrus.NewEntry(l)}
}

func (l *logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logger) WithFields(fields logrus.Fields) Logger {
	return &logger{entry: l.entry.WithFields(fields)}
}
