package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing to out at level ("debug", "info", ...) in
// "text" or "json" format.
func New(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.Infof("Logging level is %q", lvl)
	return logger, nil
}
