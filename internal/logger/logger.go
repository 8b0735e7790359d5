// Package logger provides process-wide structured logging for mxcpd.
//
// It exposes a singleton convenience shape: a package-level, swappable
// *zap.SugaredLogger reached through Debug/Info/Warn/Error/DPanic (plus
// formatted and keyed variants) so call sites never have to thread a
// logger through every function signature.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	l, err := newDefault()
	if err != nil {
		// zap's production config should never fail to build; if it does
		// there is no logger to report through, so fall back to a no-op.
		l = zap.NewNop().Sugar()
	}
	singleton.Store(l)
}

// newDefault builds the default logger from zap's production config (JSON
// output, no stack traces). It reads no environment variable; the serve
// command replaces it with a development logger when its debug flag is set.
func newDefault() (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// SetLogger replaces the process-wide logger. Used at startup once the
// debug flag / site config has been resolved, and by tests.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		return
	}
	singleton.Store(l)
}

// Get returns the current process-wide logger.
func Get() *zap.SugaredLogger {
	return singleton.Load()
}

func Debug(args ...any)                  { Get().Debug(args...) }
func Debugf(template string, args ...any) { Get().Debugf(template, args...) }
func Debugw(msg string, kv ...any)       { Get().Debugw(msg, kv...) }

func Info(args ...any)                  { Get().Info(args...) }
func Infof(template string, args ...any) { Get().Infof(template, args...) }
func Infow(msg string, kv ...any)       { Get().Infow(msg, kv...) }

func Warn(args ...any)                  { Get().Warn(args...) }
func Warnf(template string, args ...any) { Get().Warnf(template, args...) }
func Warnw(msg string, kv ...any)       { Get().Warnw(msg, kv...) }

func Error(args ...any)                  { Get().Error(args...) }
func Errorf(template string, args ...any) { Get().Errorf(template, args...) }
func Errorw(msg string, kv ...any)       { Get().Errorw(msg, kv...) }

func Fatalf(template string, args ...any) { Get().Fatalf(template, args...) }

func DPanic(args ...any)                  { Get().DPanic(args...) }
func DPanicf(template string, args ...any) { Get().DPanicf(template, args...) }
func DPanicw(msg string, kv ...any)       { Get().DPanicw(msg, kv...) }
