// Package logger configures the process-wide logrus logger and carries a
// per-cycle trace ID through context.Context.
package logger

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init configures the standard logger: a prefixed text formatter on stdout
// and, when file is non-empty, a JSON copy of every entry written to a
// rotating log file. It returns an entry tagged with the service name.
func Init(service, level, file string) (*log.Entry, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	logger := log.StandardLogger()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(lvl)
	logger.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, errors.Wrap(err, "create log directory")
		}
		writer := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // megabytes
			MaxBackups: 7,
			MaxAge:     30, // days
		}
		logger.AddHook(lfshook.NewHook(
			lfshook.WriterMap{
				log.DebugLevel: writer,
				log.InfoLevel:  writer,
				log.WarnLevel:  writer,
				log.ErrorLevel: writer,
				log.FatalLevel: writer,
				log.PanicLevel: writer,
			},
			&log.JSONFormatter{},
		))
	}

	return logger.WithField("service", service), nil
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// NewTrace returns ctx carrying a fresh random trace ID.
func NewTrace(ctx context.Context) context.Context {
	return WithTraceID(ctx, uuid.NewString())
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// Fields returns logrus fields for the trace ID in ctx, or nil.
// Usage: log.WithFields(logger.Fields(ctx)).Info("msg")
func Fields(ctx context.Context) log.Fields {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return log.Fields{"trace_id": tid}
}
