package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

//nolint:gochecknoglobals
var logLevel = new(slog.LevelVar)

// SlogManager is a [slog.Handler] passing every record to all of its named
// handlers, so that the console and the log file receive the same output.
type SlogManager struct {
	sync.RWMutex
	handlers map[string]slog.Handler
	attrs    []slog.Attr
	groups   []string
}

func NewSlogManager() *SlogManager {
	return &SlogManager{
		handlers: make(map[string]slog.Handler),
	}
}

func (m *SlogManager) Enabled(ctx context.Context, level slog.Level) bool {
	m.RLock()
	defer m.RUnlock()

	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (m *SlogManager) Handle(ctx context.Context, r slog.Record) error {
	m.RLock()
	defer m.RUnlock()

	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}

	return nil
}

func (m *SlogManager) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) }, attrs, "")
}

func (m *SlogManager) WithGroup(name string) slog.Handler {
	return m.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) }, nil, name)
}

func (m *SlogManager) derive(fn func(slog.Handler) slog.Handler, attrs []slog.Attr, group string) *SlogManager {
	m.RLock()
	defer m.RUnlock()

	derived := &SlogManager{
		handlers: make(map[string]slog.Handler, len(m.handlers)),
		attrs:    append(append([]slog.Attr{}, m.attrs...), attrs...),
		groups:   append([]string{}, m.groups...),
	}

	if group != "" {
		derived.groups = append(derived.groups, group)
	}

	for name, h := range m.handlers {
		derived.handlers[name] = fn(h)
	}

	return derived
}

// AddHandler adds a named handler, replacing any handler of the same name.
// Attributes and groups already applied to the manager are applied to it.
func (m *SlogManager) AddHandler(name string, handler slog.Handler) {
	m.Lock()
	defer m.Unlock()

	h := handler
	if len(m.attrs) > 0 {
		h = h.WithAttrs(m.attrs)
	}

	for _, group := range m.groups {
		h = h.WithGroup(group)
	}

	m.handlers[name] = h
}

func (m *SlogManager) RemoveHandler(name string) {
	m.Lock()
	defer m.Unlock()

	delete(m.handlers, name)
}

func setupLogging(w io.Writer) *SlogManager {
	manager := NewSlogManager()
	manager.AddHandler("console", tint.NewHandler(w, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.Kitchen,
	}))

	slog.SetDefault(slog.New(manager))

	return manager
}

// attachLogFile adds the daemon log file to the logging output. The returned
// closer detaches and closes the file again.
func attachLogFile(manager *SlogManager, path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:mnd
	if err != nil {
		return func() {}, fmt.Errorf("(main-logfile) failed to open %s: %w", path, err)
	}

	manager.AddHandler("file", slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: logLevel,
	}))

	return func() {
		manager.RemoveHandler("file")
		f.Close()
	}, nil
}
