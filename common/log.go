// Package common provides the logging backend shared by every component:
// a package-level logrus logger with stream-split output (errors to
// stderr, everything else to stdout) and a ContextLogger that carries
// structured fields (job id, graph uri, mime, processor name) through a
// request or message's lifetime.
package common

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus output: error-and-above to stderr, the
// rest to stdout, so container log collectors can treat the two streams
// differently.
type OutputSplitter struct{}

// stderrLevels are the level markers, in both the text and the JSON
// formatter's spelling, that route a line to stderr.
var stderrLevels = [][]byte{
	[]byte("level=error"), []byte("level=fatal"), []byte("level=panic"),
	[]byte(`"level":"error"`), []byte(`"level":"fatal"`), []byte(`"level":"panic"`),
}

func (s *OutputSplitter) Write(p []byte) (int, error) {
	for _, marker := range stderrLevels {
		if bytes.Contains(p, marker) {
			return os.Stderr.Write(p)
		}
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logrus instance. Context (C2) forwards its
// leveled, variadic logging contract onto a ContextLogger built from it.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
	Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// LogLevel mirrors the handful of levels Twine's configuration exposes;
// kept distinct from logrus.Level so config parsing doesn't need to
// import logrus directly.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Configure applies level and format (json|text) to the shared logger.
func Configure(level LogLevel, format string) {
	switch level {
	case LevelDebug:
		Logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		Logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		Logger.SetLevel(logrus.ErrorLevel)
	default:
		Logger.SetLevel(logrus.InfoLevel)
	}
	if format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// ContextLogger carries an immutable set of structured fields alongside
// the shared logger; WithField/WithFields return a new logger rather
// than mutating, so callers can safely fan a base logger out per job.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger builds a ContextLogger over the shared Logger (or a
// supplied one, mostly useful in tests) with an initial field set.
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Logger
	}
	base := make(logrus.Fields, len(fields))
	for k, v := range fields {
		base[k] = v
	}
	return &ContextLogger{logger: logger, fields: base}
}

func (cl *ContextLogger) with(fields logrus.Fields) *ContextLogger {
	merged := make(logrus.Fields, len(cl.fields)+len(fields))
	for k, v := range cl.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: merged}
}

func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	return cl.with(logrus.Fields{key: value})
}

func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	lf := make(logrus.Fields, len(fields))
	for k, v := range fields {
		lf[k] = v
	}
	return cl.with(lf)
}

func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.with(logrus.Fields{"error": err.Error()})
}

// WithContext lifts a request_id carried on ctx into the field set.
func (cl *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	fields := logrus.Fields{}
	if v := ctx.Value(requestIDKey{}); v != nil {
		fields["request_id"] = v
	}
	if len(fields) == 0 {
		return cl
	}
	return cl.with(fields)
}

type requestIDKey struct{}

func (cl *ContextLogger) Debug(msg string)                          { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Debugf(format string, args ...interface{}) { cl.logger.WithFields(cl.fields).Debugf(format, args...) }
func (cl *ContextLogger) Info(msg string)                           { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Infof(format string, args ...interface{})  { cl.logger.WithFields(cl.fields).Infof(format, args...) }
func (cl *ContextLogger) Warn(msg string)                           { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Warnf(format string, args ...interface{})  { cl.logger.WithFields(cl.fields).Warnf(format, args...) }
func (cl *ContextLogger) Error(msg string)                          { cl.logger.WithFields(cl.fields).Error(msg) }
func (cl *ContextLogger) Errorf(format string, args ...interface{}) { cl.logger.WithFields(cl.fields).Errorf(format, args...) }
func (cl *ContextLogger) Fatal(msg string)                          { cl.logger.WithFields(cl.fields).Fatal(msg) }
func (cl *ContextLogger) Fatalf(format string, args ...interface{}) { cl.logger.WithFields(cl.fields).Fatalf(format, args...) }

// LogPanic recovers from a panic in the caller's goroutine and logs it
// with a stack trace, intended to be deferred at the top of a dispatch
// worker goroutine so one bad message can't take the process down.
func LogPanic(logger *ContextLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		logger.WithFields(map[string]interface{}{
			"panic":      fmt.Sprintf("%v", r),
			"stacktrace": string(buf[:n]),
		}).Error("recovered from panic")
	}
}
