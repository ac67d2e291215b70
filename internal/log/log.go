package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	level := os.Getenv("LOG_LEVEL")
	if level != "" {
		if level == "DEBUG" {
			logger.SetLevel(logrus.DebugLevel)
		} else if level == "WARN" {
			logger.SetLevel(logrus.WarnLevel)
		} else if level == "INFO" {
			logger.SetLevel(logrus.InfoLevel)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel) // Default level; adjustable
	}
	if os.Getenv("LOG_FORMAT") == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	return logger
}
