// Package logger is a thin package-level wrapper around zap.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// SetType selects the development or production zap preset.
func SetType(mode string) {
	var (
		l   *zap.Logger
		err error
	)
	if mode == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return
	}
	SetLogger(l)
}

// SetLogger installs l as the package logger. Passing nil installs a no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	log = l
	mu.Unlock()
}

// L returns the current zap logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func toFields(xs ...interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(xs))
	i := 0
	for i < len(xs) {
		switch v := xs[i].(type) {
		case zap.Field:
			out = append(out, v)
			i++
		case map[string]interface{}:
			for k, val := range v {
				out = append(out, zap.Any(k, val))
			}
			i++
		case string:
			if i+1 < len(xs) {
				out = append(out, zap.Any(v, xs[i+1]))
				i += 2
			} else {
				out = append(out, zap.Any(v, nil))
				i++
			}
		case error:
			out = append(out, zap.Error(v))
			i++
		default:
			out = append(out, zap.Any("", v))
			i++
		}
	}
	return out
}

var callback func(urgency int, msg string, fields ...interface{})

// SetCallBack registers a hook that sees every message before it is logged.
func SetCallBack(f func(urgency int, msg string, fields ...interface{})) {
	mu.Lock()
	callback = f
	mu.Unlock()
}

func emit(urgency int, msg string, fields []interface{}) *zap.Logger {
	mu.RLock()
	cb, l := callback, log
	mu.RUnlock()
	if cb != nil {
		cb(urgency, msg, fields...)
	}
	return l
}

func Info(msg string, fields ...interface{}) {
	emit(0, msg, fields).Info(msg, toFields(fields...)...)
}

func Error(msg string, fields ...interface{}) {
	emit(1, msg, fields).Error(msg, toFields(fields...)...)
}

func Warn(msg string, fields ...interface{}) {
	emit(2, msg, fields).Warn(msg, toFields(fields...)...)
}

func Debug(msg string, fields ...interface{}) {
	emit(3, msg, fields).Debug(msg, toFields(fields...)...)
}

func Sync() {
	_ = L().Sync()
}
