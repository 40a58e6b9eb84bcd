// Package logging provides the module's structured logger: a single
// process-wide logrus.Logger with subsystem-scoped *logrus.Entry helpers,
// the pattern used throughout the retrieval pack's own logging layers.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Base is the process-wide logger. Configure replaces its level/formatter;
// everything else should go through For rather than touching Base fields
// directly.
var Base = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Configure sets Base's level and output format from config-layer values.
// level is parsed with logrus.ParseLevel; an unrecognized value leaves the
// current level untouched and returns the parse error.
func Configure(level string, jsonFormat bool) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return err
		}
		Base.SetLevel(lvl)
	}
	if jsonFormat {
		Base.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// For returns a subsystem-scoped entry, e.g. logging.For("stream") logs
// with field subsystem=stream. Components keep the returned *logrus.Entry
// rather than calling For on every log line.
func For(subsystem string) *logrus.Entry {
	return Base.WithField("subsystem", subsystem)
}
