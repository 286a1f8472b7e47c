// Package logging wraps logrus with the structured fields the registry and
// its processors attach to every lifecycle/event-bus log line.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a thin alias so callers don't import logrus directly.
type Logger = logrus.FieldLogger

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	if os.Getenv("SHARDREGISTRY_DEV") != "" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}

// SetLevel adjusts the base logger's level; cmd/registryd calls it with
// SHARDREGISTRY_LOG_LEVEL. An unparseable level leaves the level unchanged.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		base.SetLevel(lvl)
	}
}

// For returns a field-scoped logger for a processor or the registry.
func For(component string, fields logrus.Fields) Logger {
	f := logrus.Fields{"component": component}
	for k, v := range fields {
		f[k] = v
	}
	return base.WithFields(f)
}

// Base exposes the root logger for components that want to add their own
// fields incrementally (e.g. per-operation elapsed time).
func Base() *logrus.Logger { return base }
