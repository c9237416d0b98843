// Package logging wraps github.com/sirupsen/logrus (a pack dependency,
// grounded on orbas1-Synnergy/synnergy-network/walletserver/middleware/logger.go)
// behind the teacher's own convention of prefixing every log line with
// its originating component (steveyegge-beads/internal/slackbot/bot.go
// uses "slackbot: <message>" throughout): here the prefix becomes a
// structured "component" field instead of a string prefix.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/flockgroup/flock/internal/runtime/debug"
)

var (
	mu   sync.Mutex
	base = newBase()
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stderr)
	if debug.Enabled() {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// SetOutput redirects every logger's destination; tests use this to
// capture output instead of writing to stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// SetLevel overrides the configured level (normally driven by FLOCK_DEBUG).
func SetLevel(level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	base.SetLevel(level)
}

// Logger is a component-scoped structured logger.
type Logger struct {
	entry *logrus.Entry
}

// For returns a Logger scoped to component, e.g. For("swim"), For("provider").
func For(component string) *Logger {
	mu.Lock()
	defer mu.Unlock()
	return &Logger{entry: base.WithField("component", component)}
}

// With returns a derived Logger carrying additional structured fields,
// e.g. l.With("member", addr).Debugf("probe failed").
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
