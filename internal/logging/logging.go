// Package logging sets up the single structured logger threaded through
// the builder CLI and the server CLI; the geo-vocab writer pool accepts a
// component entry derived from it.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the shared logger. level is parsed with logrus' own parser
// ("debug", "info", "warn", "error"); an unrecognised level falls back to
// info rather than failing, since a bad log-level flag shouldn't prevent
// the engine from starting.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}

// Component returns a logger scoped to one engine component, e.g.
// "geovocab", "prefilter", "executor" — fields carry component names
// instead of prose, per the ambient-stack convention for this engine.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
