package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const serviceName = "authcore"

// New builds the process logger. format is "json" or "text".
func New(format, level string) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stdout
	if strings.EqualFold(format, "json") {
		log.Formatter = &logrus.JSONFormatter{}
	} else {
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.AddHook(&DefaultFieldsHook{})
	return log
}

// DefaultFieldsHook stamps every entry with the service name and host.
type DefaultFieldsHook struct{}

func (hook *DefaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *DefaultFieldsHook) Fire(e *logrus.Entry) error {
	e.Data["service"] = serviceName
	if host, err := os.Hostname(); err == nil {
		e.Data["instance"] = host
	}
	return nil
}

// OrStandard returns log, or the logrus standard logger when log is nil.
func OrStandard(log *logrus.Logger) *logrus.Logger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}
