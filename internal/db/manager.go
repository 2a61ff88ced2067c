package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"habitpulse/internal/config"
)

// PoolManager owns the process-wide cached record-store handle and its
// validate-or-recreate lifecycle. Before a caller reuses the cached pool,
// Acquire issues a cheap existence probe; if the probe errors or exceeds the
// configured latency ceiling, the handle is disposed and replaced.
//
// The manager is an explicitly constructed, injectable resource rather than
// module-level mutable state, so tests and concurrent runtime instances can
// each own one.
type PoolManager struct {
	cfg    config.DatabaseConfig
	logger *slog.Logger

	mu         sync.Mutex
	pool       *pgxpool.Pool
	instanceID string
	createdAt  time.Time

	// openFn creates a replacement pool. Injectable for tests; defaults to
	// NewPool.
	openFn func(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error)
}

// NewPoolManager creates a PoolManager. The first Acquire call opens the pool
// lazily; construction itself never touches the network.
func NewPoolManager(cfg config.DatabaseConfig, logger *slog.Logger) *PoolManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &PoolManager{
		cfg:    cfg,
		logger: logger,
		openFn: NewPool,
	}
}

// Acquire returns a healthy pool handle, recreating the cached one if the
// existence probe fails or is slower than the configured ceiling.
func (m *PoolManager) Acquire(ctx context.Context) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pool != nil {
		if err := m.probe(ctx, m.pool); err == nil {
			return m.pool, nil
		} else {
			m.logger.WarnContext(ctx, "record-store handle failed probe, recreating",
				"instance_id", m.instanceID,
				"created_at", m.createdAt.Format(time.RFC3339),
				"error", err,
			)
			m.disposeLocked()
		}
	}

	return m.openLocked(ctx)
}

// Reset disposes the cached handle so the next Acquire is forced through a
// full open. The error classifier calls this when it sees a connection-class
// failure.
func (m *PoolManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pool == nil {
		return
	}
	m.logger.Info("record-store handle reset requested",
		"instance_id", m.instanceID,
		"created_at", m.createdAt.Format(time.RFC3339),
	)
	m.disposeLocked()
}

// Close disposes the cached handle permanently. Used during shutdown.
func (m *PoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposeLocked()
}

// probe issues the cheap existence check. A probe slower than ProbeLatencyMax
// is treated the same as a failed one: the handle is stale.
func (m *PoolManager) probe(ctx context.Context, pool *pgxpool.Pool) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeLatencyMax)
	defer cancel()

	start := time.Now()
	var one int
	if err := pool.QueryRow(probeCtx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("existence probe: %w", err)
	}
	if elapsed := time.Since(start); elapsed > m.cfg.ProbeLatencyMax {
		return fmt.Errorf("existence probe took %s (ceiling %s)", elapsed, m.cfg.ProbeLatencyMax)
	}
	return nil
}

func (m *PoolManager) openLocked(ctx context.Context) (*pgxpool.Pool, error) {
	oldID := m.instanceID

	pool, err := m.openFn(ctx, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("opening record-store pool: %w", err)
	}

	m.pool = pool
	m.instanceID = uuid.NewString()
	m.createdAt = time.Now().UTC()

	m.logger.InfoContext(ctx, "record-store handle created",
		"old_instance_id", oldID,
		"new_instance_id", m.instanceID,
		"created_at", m.createdAt.Format(time.RFC3339),
	)

	return pool, nil
}

func (m *PoolManager) disposeLocked() {
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
}

// PoolManager satisfies DBTX by routing every call through Acquire, so
// repositories constructed over the manager keep working across handle
// recreation.
var _ DBTX = (*PoolManager)(nil)

// Exec implements DBTX.
func (m *PoolManager) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	pool, err := m.Acquire(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, arguments...)
}

// Query implements DBTX.
func (m *PoolManager) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

// QueryRow implements DBTX. Acquisition failures surface on Scan, matching
// the pgx.Row contract.
func (m *PoolManager) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pool, err := m.Acquire(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return pool.QueryRow(ctx, sql, args...)
}

// errRow is a pgx.Row that fails with a fixed error.
type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }
