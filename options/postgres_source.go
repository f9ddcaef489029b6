package options

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aryangodara/rate_limited"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	_ PropertySource = &PostgresSource{}
)

// DefaultPropertiesTable is the table read by a PostgresSource unless
// configured otherwise.
const DefaultPropertiesTable = "rate_limit_properties"

type (
	// Querier is satisfied by *pgx.Conn and *pgxpool.Pool.
	Querier interface {
		Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	}

	// PostgresOption configures a PostgresSource.
	PostgresOption func(s *PostgresSource)

	// PostgresSource is a PropertySource kept in a PostgreSQL table of
	// (name, value) text pairs. Properties are held in memory and replaced
	// as a whole by Refresh, so operators can block or retune a limit with
	// an UPDATE and no redeploy.
	PostgresSource struct {
		db     Querier
		table  string
		logger *zap.Logger

		refreshInterval time.Duration
		refreshOnce     sync.Once

		properties atomic.Pointer[map[string]string]
	}
)

// WithTable replaces DefaultPropertiesTable.
func WithTable(table string) PostgresOption {
	return func(s *PostgresSource) {
		s.table = table
	}
}

// WithRefreshInterval sets how often StartRefresh reloads the table.
// Default is 30 seconds. It must be positive.
func WithRefreshInterval(d time.Duration) PostgresOption {
	return func(s *PostgresSource) {
		s.refreshInterval = d
	}
}

// WithPostgresLogger sets a custom logger for the source.
func WithPostgresLogger(l *zap.Logger) PostgresOption {
	return func(s *PostgresSource) {
		s.logger = l.Named("postgres_source")
	}
}

// NewPostgresSource creates a source over db and loads the table once.
func NewPostgresSource(ctx context.Context, db Querier, options ...PostgresOption) (*PostgresSource, error) {
	s := &PostgresSource{
		db:              db,
		table:           DefaultPropertiesTable,
		logger:          zap.NewNop(),
		refreshInterval: 30 * time.Second,
	}

	for _, o := range options {
		o(s)
	}

	if s.refreshInterval <= 0 {
		return nil, fmt.Errorf("%w: refresh interval must be positive, got %v", rate_limited.ErrIllegalConfiguration, s.refreshInterval)
	}

	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *PostgresSource) Lookup(name string) (any, bool) {
	v, ok := (*s.properties.Load())[name]
	return v, ok
}

// Refresh reloads every property from the table.
func (s *PostgresSource) Refresh(ctx context.Context) error {
	q := fmt.Sprintf("SELECT name, value FROM %s", pgx.Identifier{s.table}.Sanitize())

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("cannot query rate limit properties: %w", err)
	}
	defer rows.Close()

	properties := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("cannot scan rate limit property: %w", err)
		}
		properties[name] = value
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("cannot read rate limit properties: %w", err)
	}

	s.properties.Store(&properties)
	return nil
}

// StartRefresh reloads the table periodically until ctx is cancelled. It
// only starts once; later calls are no-ops.
func (s *PostgresSource) StartRefresh(ctx context.Context) {
	s.refreshOnce.Do(func() {
		go s.refreshLoop(ctx)
	})
}

func (s *PostgresSource) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Error("cannot refresh rate limit properties", zap.Error(err))
			}
		}
	}
}
