package obs

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// LogOptions configures the process logger.
type LogOptions struct {
	Level  string // trace|debug|info|warn|error
	Format string // json|text
	Output io.Writer
}

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(jsonFormatter())
	})
	return logger
}

// InitLogger applies level, format and output to the shared logger.
func InitLogger(opts LogOptions) *logrus.Logger {
	l := Logger()
	level, err := logrus.ParseLevel(strings.TrimSpace(strings.ToLower(opts.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	if strings.EqualFold(opts.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(jsonFormatter())
	}
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	}
	return l
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
		},
	}
}
