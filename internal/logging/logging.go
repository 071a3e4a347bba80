// Package logging configures the logrus logger shared by the command line
// tool.
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// New creates a text logger writing to out. Verbose forces debug output;
// otherwise level is one of debug, info, warn or error and anything else
// means info.
func New(out io.Writer, level string, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return logger
	}

	switch strings.ToLower(level) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}
