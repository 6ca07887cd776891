package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/synapsedb/synapse/internal/apperr"
	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/mathengine"
)

var log = logging.GetLogger("store")

// PoolConfig mirrors the pool-sizing and timeout knobs of §4.7.
type PoolConfig struct {
	URL                         string
	MaxConns                    int32
	MinConns                    int32
	StatementTimeout            time.Duration
	MaintenanceStatementTimeout time.Duration
	EmbeddingDimension          int
}

// dbpool is the slice of *pgxpool.Pool the Repository actually calls. Tests
// substitute a pgxmock.PgxPoolIface, which implements the identical method
// set, to assert rollback-on-early-return without a live database.
type dbpool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
	Stat() *pgxpool.Stat
}

// Store wraps a pgx connection pool with the schema and repository
// operations of §4.3. It is the single owner of the pool's lifecycle.
type Store struct {
	pool    dbpool
	dim     int
	config  PoolConfig
	mathCfg mathengine.Config
}

// Open builds and verifies a connection pool sized for concurrent vector
// queries. AfterConnect installs a per-connection statement_timeout and
// probes for the vector extension, refusing connections that lack it.
// mathCfg parameterises the access-time consolidation recompute done by
// RecordAccess (§3 "recomputed on access").
func Open(ctx context.Context, cfg PoolConfig, mathCfg mathengine.Config) (*Store, error) {
	log.Info("opening connection pool", "max_conns", cfg.MaxConns, "min_conns", cfg.MinConns)

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, apperr.Databasef(err, "parse pool config")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	statementTimeoutMillis := cfg.StatementTimeout.Milliseconds()
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", statementTimeoutMillis)); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
		var extName string
		err := conn.QueryRow(ctx, `SELECT extname FROM pg_extension WHERE extname = 'vector'`).Scan(&extName)
		if err != nil {
			log.Error("vector extension health probe failed", "error", err)
			return fmt.Errorf("vector extension not available: %w", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("failed to create pool", "error", err)
		return nil, apperr.Databasef(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		log.Error("failed to ping database", "error", err)
		return nil, apperr.Databasef(err, "ping database")
	}

	log.Info("connection pool established")
	return &Store{pool: pool, dim: cfg.EmbeddingDimension, config: cfg, mathCfg: mathCfg}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	log.Info("closing connection pool")
	s.pool.Close()
}

// InitSchema creates tables, indexes, and the HNSW vector index if they do
// not already exist. Idempotent: safe to call on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	log.Info("initializing schema", "version", SchemaVersion)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Databasef(err, "begin schema transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, CoreSchema); err != nil {
		return apperr.Databasef(err, "create core schema")
	}
	if _, err := tx.Exec(ctx, FullTextSchema); err != nil {
		return apperr.Databasef(err, "create fulltext schema")
	}

	m, efConstruction := DefaultHNSWParams(s.dim)
	if _, err := tx.Exec(ctx, fmt.Sprintf(VectorIndexSchema, m, efConstruction)); err != nil {
		return apperr.Databasef(err, "create hnsw index")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_version (version) VALUES ($1)
		ON CONFLICT (version) DO NOTHING
	`, SchemaVersion); err != nil {
		return apperr.Databasef(err, "record schema version")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Databasef(err, "commit schema transaction")
	}

	log.Info("schema initialized")
	return nil
}

// PoolStats reports current pool saturation per §4.7.
type PoolStats struct {
	AcquiredConns   int32
	IdleConns       int32
	MaxConns        int32
	TotalConns      int32
	Utilization     float64
	SaturationAlert bool
}

// PoolStats returns pool saturation, alerting at 70% utilisation per §4.7/§5.
func (s *Store) PoolStats(alertThreshold float64) *PoolStats {
	stat := s.pool.Stat()
	var utilization float64
	if stat.MaxConns() > 0 {
		utilization = float64(stat.TotalConns()) / float64(stat.MaxConns())
	}
	alert := utilization >= alertThreshold
	if alert {
		log.Warn("connection pool utilization above alert threshold", "utilization", utilization, "threshold", alertThreshold)
	}
	return &PoolStats{
		AcquiredConns:   stat.AcquiredConns(),
		IdleConns:       stat.IdleConns(),
		MaxConns:        stat.MaxConns(),
		TotalConns:      stat.TotalConns(),
		Utilization:     utilization,
		SaturationAlert: alert,
	}
}
