// Package config loads and hot-reloads per-backend configuration from
// disk, following two teacher patterns: viper for parsing
// (internal/labelmutex/policy.go opens a fresh *viper.Viper, points it
// at one YAML file, and reads a namespaced key) and fsnotify for live
// reload (cmd/bd/list.go's watchIssues debounces fsnotify.Write events
// before re-reading).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/flockgroup/flock/internal/errs"
)

// Loader reads one backend's config file (any viper-supported format)
// and optionally watches it for changes, debounced the way list.go
// debounces rapid fsnotify events before re-reading.
type Loader struct {
	path           string
	debounce       time.Duration
	mu             sync.Mutex
	v              *viper.Viper
	watcher        *fsnotify.Watcher
	onChange       func(*viper.Viper)
	stop           chan struct{}
}

// NewLoader opens path (which need not yet exist) for reading. The
// config format is inferred from its extension.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
		}
	}
	return &Loader{path: path, debounce: 500 * time.Millisecond, v: v}, nil
}

// Get returns a raw value at key (dotted path, e.g. "swim.protocol_period_ms").
func (l *Loader) Get(key string) interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.Get(key)
}

// GetString, GetInt, GetDuration, GetBool are thin typed wrappers used
// by each backend's own config struct construction.
func (l *Loader) GetString(key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.GetString(key)
}

func (l *Loader) GetInt(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.GetInt(key)
}

func (l *Loader) GetDuration(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.GetDuration(key)
}

func (l *Loader) GetBool(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.GetBool(key)
}

// Watch starts watching the config file's directory (fsnotify can miss
// atomic-rename replacements if it only watches the file itself, the
// same reason list.go watches the containing .beads directory rather
// than issues.jsonl directly) and invokes onChange, debounced, after
// every write that touches l.path.
func (l *Loader) Watch(onChange func(*viper.Viper)) error {
	l.mu.Lock()
	if l.watcher != nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: already watching", errs.ErrInvalidArgs)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		l.mu.Unlock()
		return err
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		l.mu.Unlock()
		return err
	}
	l.watcher = w
	l.onChange = onChange
	l.stop = make(chan struct{})
	l.mu.Unlock()

	go l.watchLoop(w, dir)
	return nil
}

func (l *Loader) watchLoop(w *fsnotify.Watcher, dir string) {
	target := filepath.Base(l.path)
	var timer *time.Timer
	for {
		select {
		case <-l.stop:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(l.debounce, l.reload)
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
	_ = dir
}

func (l *Loader) reload() {
	l.mu.Lock()
	v := viper.New()
	v.SetConfigFile(l.path)
	if err := v.ReadInConfig(); err != nil {
		l.mu.Unlock()
		return
	}
	l.v = v
	cb := l.onChange
	l.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}

// Close stops the watch goroutine, if any.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return nil
	}
	close(l.stop)
	err := l.watcher.Close()
	l.watcher = nil
	return err
}

// IsBackendKey reports whether key belongs to a known backend config
// namespace, by prefix match on "static.", "centralized." or "swim.";
// a bare namespace name without the dot does not match.
func IsBackendKey(key string) bool {
	for _, prefix := range []string{"static.", "centralized.", "swim."} {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
