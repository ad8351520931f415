// Package logging provides the structured logger shared by every
// supervisor component, configured once at startup and handed out per
// component the way grove-core's logging package hands out per-component
// singletons.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	root    = logrus.New()
	loggers = make(map[string]*logrus.Entry)
)

// Configure sets the process-wide log level and formatter. Call once
// during startup before any component requests a logger.
func Configure(level, format string) {
	mu.Lock()
	defer mu.Unlock()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	root.SetLevel(parsed)
	root.SetOutput(os.Stderr)

	if format == "json" {
		root.SetFormatter(&logrus.JSONFormatter{})
	} else {
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// For returns the logger for a named component, creating it on first use.
func For(component string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()

	if entry, ok := loggers[component]; ok {
		return entry
	}
	entry := root.WithField("component", component)
	loggers[component] = entry
	return entry
}
