package options

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	_ PropertySource = &ViperSource{}
)

// keyDelimiter keeps dotted property names flat: "rate.limited.k.interval"
// and "rate.limited.k.interval.unit" are two unrelated keys.
const keyDelimiter = "::"

const reloadDebounce = 100 * time.Millisecond

type (
	// ViperOption configures a ViperSource.
	ViperOption func(s *ViperSource)

	// ViperSource is a PropertySource backed by a configuration file (YAML,
	// JSON, TOML or dotenv) holding flat property names:
	//
	//	rate.limited.checkout.enabled: true
	//	rate.limited.checkout.requests: 5
	//	rate.limited.checkout.interval: 10
	//	rate.limited.checkout.interval.unit: SECONDS
	//
	// Reload and Watch swap in a freshly read configuration, so lookups never
	// observe a half-read file.
	ViperSource struct {
		path     string
		current  atomic.Pointer[viper.Viper]
		logger   *zap.Logger
		onChange func()
	}
)

// WithViperLogger sets the logger used while watching the file.
func WithViperLogger(l *zap.Logger) ViperOption {
	return func(s *ViperSource) {
		s.logger = l.Named("viper_source")
	}
}

// WithOnChange registers a callback run after each successful reload.
func WithOnChange(f func()) ViperOption {
	return func(s *ViperSource) {
		s.onChange = f
	}
}

// NewViperSource reads the configuration file at path.
func NewViperSource(path string, options ...ViperOption) (*ViperSource, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	s := &ViperSource{
		path:   absPath,
		logger: zap.NewNop(),
	}

	for _, o := range options {
		o(s)
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *ViperSource) Lookup(name string) (any, bool) {
	v := s.current.Load()
	if !v.IsSet(name) {
		return nil, false
	}
	return v.Get(name), true
}

// Reload reads the file again. On error the previous configuration stays
// in place.
func (s *ViperSource) Reload() error {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(s.path)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("cannot read rate limit configuration %s: %w", s.path, err)
	}

	s.current.Store(v)
	return nil
}

// Watch reloads the configuration whenever the file changes, until ctx is
// done.
func (s *ViperSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot create file watcher: %w", err)
	}

	// watch the directory, editors replace files rather than write them
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("cannot watch directory of %s: %w", s.path, err)
	}

	go s.watchLoop(ctx, watcher)

	s.logger.Info("watching rate limit configuration", zap.String("path", s.path))
	return nil
}

func (s *ViperSource) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(reloadDebounce)
			}

		case <-debounce:
			debounce = nil
			if err := s.Reload(); err != nil {
				s.logger.Warn("cannot reload rate limit configuration", zap.Error(err))
				continue
			}
			s.logger.Info("rate limit configuration reloaded", zap.String("path", s.path))
			if s.onChange != nil {
				s.onChange()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("rate limit configuration watch error", zap.Error(err))
		}
	}
}
