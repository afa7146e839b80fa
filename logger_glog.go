package automate

import (
	"context"
	"fmt"

	"github.com/goliatone/go-logger/glog"
)

type glogLogger struct {
	logger glog.Logger
}

// NewGlogLogger adapts a go-logger logger to the Logger contract.
func NewGlogLogger(logger glog.Logger) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	return glogLogger{logger: logger}
}

func (l glogLogger) Trace(msg string, args ...any) { l.logger.Trace(sprintfArgs(msg, args)) }
func (l glogLogger) Debug(msg string, args ...any) { l.logger.Debug(sprintfArgs(msg, args)) }
func (l glogLogger) Info(msg string, args ...any)  { l.logger.Info(sprintfArgs(msg, args)) }
func (l glogLogger) Warn(msg string, args ...any)  { l.logger.Warn(sprintfArgs(msg, args)) }
func (l glogLogger) Error(msg string, args ...any) { l.logger.Error(sprintfArgs(msg, args)) }
func (l glogLogger) Fatal(msg string, args ...any) { l.logger.Fatal(sprintfArgs(msg, args)) }

// glog treats trailing args as key/value pairs, so printf args are applied
// here.
func sprintfArgs(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

func (l glogLogger) WithContext(ctx context.Context) Logger {
	return glogLogger{logger: l.logger.WithContext(ctx)}
}

func (l glogLogger) WithFields(fields map[string]any) Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogLogger{logger: fl.WithFields(fields)}
	}
	return l
}
