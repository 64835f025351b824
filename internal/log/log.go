// Package log configures the global logrus logger from a config.LogConfig,
// the way core/log does it for every plantd service.
package log

import (
	"github.com/dispatchd/dispatchd/internal/config"
	log "github.com/sirupsen/logrus"
	loki "github.com/yukitsune/lokirus"
)

// Initialize sets the global logrus level, formatter, and an optional
// Loki push hook from c. An unparseable Level is left untouched rather
// than silently defaulting, so a typo in config surfaces as "logging is
// stuck at whatever it was" rather than quietly becoming info.
func Initialize(c config.LogConfig) {
	if level, err := log.ParseLevel(c.Level); err == nil {
		log.SetLevel(level)
	}

	if c.Formatter == "json" {
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if c.Loki.Address == "" {
		return
	}

	labels := loki.Labels{}
	for k, v := range c.Loki.Labels {
		labels[k] = v
	}

	opts := loki.NewLokiHookOptions().
		WithLevelMap(loki.LevelMap{log.PanicLevel: "critical"}).
		WithFormatter(&log.JSONFormatter{}).
		WithStaticLabels(labels)

	hook := loki.NewLokiHookWithOpts(
		c.Loki.Address,
		opts,
		log.InfoLevel,
		log.WarnLevel,
		log.ErrorLevel,
		log.FatalLevel,
	)

	log.AddHook(hook)
}
