package options

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

var (
	_ PropertySource = &ConsulSource{}
)

type (
	// KV is the subset of the Consul KV API used by ConsulSource.
	KV interface {
		List(prefix string, q *api.QueryOptions) (api.KVPairs, *api.QueryMeta, error)
	}

	// ConsulOption configures a ConsulSource.
	ConsulOption func(s *ConsulSource)

	// ConsulSource is a PropertySource kept under a Consul KV folder. The
	// property "rate.limited.checkout.enabled" is stored at
	// "<folder>/rate.limited.checkout.enabled". Watch follows changes
	// with blocking queries.
	ConsulSource struct {
		kv     KV
		folder string
		logger *zap.Logger

		watchOnce  sync.Once
		lastIndex  atomic.Uint64
		properties atomic.Pointer[map[string]string]
	}
)

// WithConsulLogger sets a custom logger for the source.
func WithConsulLogger(l *zap.Logger) ConsulOption {
	return func(s *ConsulSource) {
		s.logger = l.Named("consul_source")
	}
}

// NewConsulSource creates a source reading the folder of kv, usually
// client.KV() of an *api.Client, and loads it once.
func NewConsulSource(ctx context.Context, kv KV, folder string, options ...ConsulOption) (*ConsulSource, error) {
	s := &ConsulSource{
		kv:     kv,
		folder: strings.TrimSuffix(folder, "/") + "/",
		logger: zap.NewNop(),
	}

	for _, o := range options {
		o(s)
	}

	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *ConsulSource) Lookup(name string) (any, bool) {
	v, ok := (*s.properties.Load())[name]
	return v, ok
}

// Refresh reloads the folder. It blocks until the folder changes when a
// previous refresh recorded an index.
func (s *ConsulSource) Refresh(ctx context.Context) error {
	q := (&api.QueryOptions{WaitIndex: s.lastIndex.Load()}).WithContext(ctx)

	pairs, meta, err := s.kv.List(s.folder, q)
	if err != nil {
		return fmt.Errorf("cannot list consul folder %s: %w", s.folder, err)
	}

	properties := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name := strings.TrimPrefix(pair.Key, s.folder)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		properties[name] = strings.TrimSpace(string(pair.Value))
	}

	s.properties.Store(&properties)
	if meta != nil {
		index := meta.LastIndex
		// consul may move the index backwards, start over
		if index < s.lastIndex.Load() {
			index = 0
		}
		s.lastIndex.Store(index)
	}

	return nil
}

// Watch keeps the properties in sync with Consul until ctx is cancelled.
// It only starts once; later calls are no-ops.
func (s *ConsulSource) Watch(ctx context.Context) {
	s.watchOnce.Do(func() {
		go s.watchLoop(ctx)
	})
}

func (s *ConsulSource) watchLoop(ctx context.Context) {
	for {
		if err := s.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("cannot refresh rate limit properties from consul", zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}

		if ctx.Err() != nil {
			return
		}
	}
}
