package log

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultLogger writes text to stderr until Init replaces it
var DefaultLogger = newLogger(logrus.New(), nil)

// LogParams are the structured fields attached to a log entry
type LogParams map[string]interface{}

// Options select where entries go and how they look
type Options struct {
	// Path of the log file, stderr when empty
	Path string
	// Format is `json` or `text`
	Format string
	// Level is parsed by logrus, e.g. debug or info
	Level string
}

type Logger struct {
	entry *logrus.Entry

	// only the root logger owns the file
	file *os.File
}

func newLogger(l *logrus.Logger, file *os.File) *Logger {
	return &Logger{
		entry: logrus.NewEntry(l),
		file:  file,
	}
}

// New builds a root logger from opts
func New(opts Options) (*Logger, error) {
	l := logrus.New()
	switch opts.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, errors.Wrap(err, "log level")
		}
		l.SetLevel(level)
	}

	var file *os.File
	if opts.Path != "" {
		f, err := os.OpenFile(opts.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, errors.Wrapf(err, "open log file %s", opts.Path)
		}
		l.SetOutput(f)
		file = f
	}
	return newLogger(l, file), nil
}

// Writer returns a logger that writes text entries to w
func Writer(w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	return newLogger(l, nil)
}

// Init replaces DefaultLogger
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	DefaultLogger = l
	return nil
}

// Destroy closes the log file of DefaultLogger
func Destroy() {
	DefaultLogger.Destroy()
}

func Debug(s string) {
	DefaultLogger.Debug(s)
}

func Info(s string) {
	DefaultLogger.Info(s)
}

func Warn(s string) {
	DefaultLogger.Warn(s)
}

func Error(s string) {
	DefaultLogger.Error(s)
}

// Fatal logs the message and exits with non-zero exit code
func Fatal(s string) {
	DefaultLogger.Fatal(s)
}

func With(params LogParams) *Logger {
	return DefaultLogger.With(params)
}

func SetLevel(l string) {
	DefaultLogger.SetLevel(l)
}

func (l *Logger) Debug(s string) {
	l.entry.Debug(s)
}

func (l *Logger) Info(s string) {
	l.entry.Info(s)
}

func (l *Logger) Warn(s string) {
	l.entry.Warn(s)
}

func (l *Logger) Error(s string) {
	l.entry.Error(s)
}

// Fatal logs the message and exits with non-zero exit code
func (l *Logger) Fatal(s string) {
	l.entry.Fatal(s)
}

// With returns a child logger carrying params on every entry
func (l *Logger) With(params LogParams) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(params))}
}

// WithError attaches err under the `error` field
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// Service is shorthand for With(LogParams{"service": name})
func (l *Logger) Service(name string) *Logger {
	return l.With(LogParams{"service": name})
}

// SetLevel changes the level of the root logger; unknown levels are ignored
func (l *Logger) SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	l.entry.Logger.SetLevel(parsed)
}

func (l *Logger) Destroy() {
	if l.file != nil {
		l.file.Close()
	}
}
