// Package logging wires up the simulator's structured logger. All
// components that log (the command, the scheduler and the transports) share
// a single *logrus.Logger so that level and formatting stay consistent.
// The config loader and the dispatcher do not log.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger at the given level (empty defaults to
// "info"). An unrecognized level is a configuration error, reported the
// same way a bad dynamics kind is.
func New(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(parsed)
	return logger, nil
}
