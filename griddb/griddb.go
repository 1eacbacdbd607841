// Package griddb is the storage engine: the partitioned Postgres schema,
// the transactional batch repositories feeding it, and the read queries
// the analytics API serves from it.
package griddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/jackc/pgx/v5"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoLink is returned when a vehicle has no meter link.
	ErrNoLink = errors.New("vehicle has no meter link")
	// ErrMissingRange is returned by history queries without a time range.
	ErrMissingRange = errors.New("history queries require from and to")
)

// Store wraps the pgx pool. All methods are safe for concurrent use; no
// method relies on server-side state outliving a single transaction, which
// keeps the store compatible with transaction-mode poolers.
type Store struct {
	cfg    Config
	pool   *pgxpool.Pool
	logger log.Logger
}

// New builds the pool but does not ping it; callers decide their own
// startup retry policy.
func New(cfg Config, logger log.Logger) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}
	poolCfg.MinConns = cfg.PoolMinConns
	poolCfg.MaxConns = cfg.PoolMaxConns
	// Exec mode avoids named prepared statements, which do not survive a
	// transaction-mode pooler handing the server connection to someone else.
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	return &Store{
		cfg:    cfg,
		pool:   pool,
		logger: log.With(logger, "component", "griddb"),
	}, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
