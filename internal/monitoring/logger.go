// Package monitoring holds the pipeline's logger, metrics and trace hooks.
package monitoring

import (
	"fmt"

	"go.uber.org/zap"
)

var sugar = zap.NewNop().Sugar()

// Logf is the printf-style progress logger used by packages that only need
// one-line status messages. Init points it at the zap logger; SetLogger
// replaces it outright.
var Logf func(format string, v ...interface{}) = func(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

// Init builds the process logger: human-readable development output when
// debug is set, JSON production output otherwise.
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}
	SetZap(l)
	return nil
}

// SetZap installs l as the structured logger and routes Logf through it.
func SetZap(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	sugar = l.Sugar()
	Logf = func(format string, v ...interface{}) { sugar.Infof(format, v...) }
}

// SetLogger replaces Logf. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// L returns the structured logger.
func L() *zap.SugaredLogger { return sugar }

// Sync flushes buffered entries.
func Sync() { _ = sugar.Sync() }

func Debugw(msg string, keysAndValues ...interface{}) { sugar.Debugw(msg, keysAndValues...) }
func Infow(msg string, keysAndValues ...interface{})  { sugar.Infow(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { sugar.Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { sugar.Errorw(msg, keysAndValues...) }
