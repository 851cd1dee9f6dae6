package logger

import (
	"fmt"

	"go.uber.org/zap"

	"quiz-agent/internal/application/port/output"
)

var _ output.LoggerPort = (*ZapAdapter)(nil)

// ZapAdapter backs LoggerPort with a zap sugared logger. WithField derives a
// child logger; all children share the parent's core.
type ZapAdapter struct {
	sugar *zap.SugaredLogger
}

// New builds a production JSON logger. debug switches to the development
// config with debug level enabled.
func New(debug bool) (*ZapAdapter, error) {
	var (
		z   *zap.Logger
		err error
	)
	if debug {
		z, err = zap.NewDevelopment()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("create zap logger: %w", err)
	}
	return &ZapAdapter{sugar: z.Sugar()}, nil
}

func (l *ZapAdapter) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *ZapAdapter) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ZapAdapter) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ZapAdapter) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

func (l *ZapAdapter) WithField(key string, value any) output.LoggerPort {
	return &ZapAdapter{sugar: l.sugar.With(key, value)}
}

func (l *ZapAdapter) WithFields(fields map[string]any) output.LoggerPort {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &ZapAdapter{sugar: l.sugar.With(args...)}
}

func (l *ZapAdapter) Close() error {
	// Sync flushes buffered entries; stderr sync errors are not actionable.
	_ = l.sugar.Sync()
	return nil
}
