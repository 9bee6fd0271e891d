// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// SetLogFormat selects the text or json formatter.
func SetLogFormat(format string) {
	if format != "text" && format != "json" && format != "" {
		logrus.WithFields(logrus.Fields{"format": format}).Warn("Unknown log format specified, using text. Possible options are json and text.")
	}

	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
		return
	}
	// show full timestamps
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// SetLogLevel parses ll and applies it, falling back to info.
func SetLogLevel(ll string) {
	if ll == "" {
		ll = "info"
	}

	logLevel, err := logrus.ParseLevel(ll)
	if err != nil {
		logrus.WithFields(logrus.Fields{"level": ll}).Warn("Could not parse log level, setting to INFO")
		logLevel = logrus.InfoLevel
	}
	logrus.SetLevel(logLevel)
}

// Setup applies level, format and output in one call.
func Setup(level, format string, out io.Writer) {
	if out != nil {
		logrus.SetOutput(out)
	}
	SetLogFormat(format)
	SetLogLevel(level)
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
