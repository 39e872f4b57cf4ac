// Package logger configures the process-wide logrus logger.
package logger

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"taskdesk/internal/config"
)

// Setup builds a logger for env. level, when non-empty, overrides the
// environment's default level.
func Setup(env, level string) *log.Entry {
	return setup(os.Stdout, env, level)
}

func setup(out io.Writer, env, level string) *log.Entry {
	l := log.New()
	l.SetOutput(out)

	switch env {
	case config.EnvLocal:
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		l.SetLevel(log.DebugLevel)
	case config.EnvDev:
		l.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
		l.SetLevel(log.InfoLevel)
	default:
		l.SetFormatter(&log.JSONFormatter{})
		l.SetLevel(log.InfoLevel)
	}

	if level != "" {
		if lvl, err := log.ParseLevel(level); err == nil {
			l.SetLevel(lvl)
		} else {
			l.WithField("log_level", level).Warn("unknown log level, keeping default")
		}
	}
	return log.NewEntry(l).WithField("service", "taskdesk")
}
