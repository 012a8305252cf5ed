package utils

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger     *logrus.Logger
	loggerOnce sync.Once
)

// GetLogger returns the process-wide logger. Until ConfigureLogger runs it
// logs JSON at the level named by LOG_LEVEL.
func GetLogger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stdout)
	})
	return logger
}

// ConfigureLogger applies level and format to the shared logger so the web
// and worker binaries log the same way regardless of import order.
func ConfigureLogger(level, format string) *logrus.Logger {
	l := GetLogger()
	l.SetLevel(parseLevel(level))
	l.SetFormatter(newFormatter(format))
	return l
}

// NewLogger builds a logger writing to out. Unknown levels fall back to info,
// and any format other than "text" logs JSON.
func NewLogger(level, format string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(parseLevel(level))
	l.SetFormatter(newFormatter(format))
	l.SetOutput(out)
	return l
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func newFormatter(format string) logrus.Formatter {
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	}
}
