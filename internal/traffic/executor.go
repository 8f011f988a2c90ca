// Package traffic runs read-only statements against the vessel traffic
// database (port calls, fleet, ports and emissions views).
package traffic

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/config"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/observability"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/worker"
)

const (
	maxConnectionRetries = 5
	connectionRetrySleep = 2 * time.Second
)

// querier is the subset of pgxpool.Pool the executor needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// Executor runs statements on a pool whose sessions are read-only and carry
// a server-side statement timeout.
type Executor struct {
	db      querier
	pool    *pgxpool.Pool
	timeout time.Duration
	maxRows int
	logger  *zerolog.Logger
}

// New connects to TRAFFIC_DSN. Every session is opened with
// default_transaction_read_only=on and statement_timeout set from
// TRAFFIC_STATEMENT_TIMEOUT.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Executor, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.TrafficDSN)
	if err != nil {
		return nil, fmt.Errorf("parse traffic db config: %w", err)
	}

	if cfg.TrafficMaxConnections > 0 {
		poolCfg.MaxConns = cfg.TrafficMaxConnections
	}

	poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"

	if cfg.TrafficStatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.TrafficStatementTimeout.Milliseconds(), 10)
	}

	pool, err := connect(ctx, poolCfg, logger)
	if err != nil {
		return nil, err
	}

	e := newExecutor(pool, cfg, logger)
	e.pool = pool

	return e, nil
}

func newExecutor(db querier, cfg *config.Config, logger *zerolog.Logger) *Executor {
	return &Executor{
		db:      db,
		timeout: cfg.TrafficStatementTimeout,
		maxRows: cfg.TrafficMaxRows,
		logger:  logger,
	}
}

func connect(ctx context.Context, poolCfg *pgxpool.Config, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	var err error

	for i := 0; i < maxConnectionRetries; i++ {
		var pool *pgxpool.Pool

		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}

			pool.Close()
		}

		logger.Warn().Err(err).Int("attempt", i+1).Msg("traffic db connection failed")

		if waitErr := worker.Wait(ctx, connectionRetrySleep); waitErr != nil {
			return nil, fmt.Errorf("connect to traffic db: %w", waitErr)
		}
	}

	return nil, fmt.Errorf("failed to connect to traffic db after retries: %w", err)
}

// Execute runs a generated validation query and returns every row.
func (e *Executor) Execute(ctx context.Context, sql string, args ...any) (domain.ResultSet, error) {
	return e.query(ctx, 0, sql, args...)
}

// RunCustomQuery runs an operator-supplied statement. Only a single SELECT or
// WITH statement is accepted and at most TRAFFIC_MAX_ROWS rows are returned.
func (e *Executor) RunCustomQuery(ctx context.Context, sql string) (domain.ResultSet, error) {
	stmt, err := ValidateReadOnly(sql)
	if err != nil {
		return domain.ResultSet{}, err
	}

	e.logger.Info().Str("query", truncate(stmt, 200)).Msg("running custom traffic query")

	return e.query(ctx, e.maxRows, stmt)
}

// Ping checks the traffic database connection.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping traffic db: %w", err)
	}

	return nil
}

// Close releases the pool.
func (e *Executor) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func (e *Executor) query(ctx context.Context, limit int, sql string, args ...any) (domain.ResultSet, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("traffic query: %w", err)
	}

	rs, truncated, err := collect(rows, limit)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("traffic query: %w", err)
	}

	if truncated {
		e.logger.Warn().Int("limit", limit).Msg("traffic query result truncated")
	}

	observability.TrafficQueryRows.Observe(float64(rs.Len()))

	return rs, nil
}

// collect reads column names and row values. A positive limit stops reading
// after that many rows and reports truncation.
func collect(rows pgx.Rows, limit int) (domain.ResultSet, bool, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	rs := domain.ResultSet{Columns: make([]string, len(fields))}

	for i, f := range fields {
		rs.Columns[i] = f.Name
	}

	for rows.Next() {
		if limit > 0 && len(rs.Rows) == limit {
			return rs, true, nil
		}

		values, err := rows.Values()
		if err != nil {
			return domain.ResultSet{}, false, fmt.Errorf("read row: %w", err)
		}

		for i, v := range values {
			values[i] = normalizeValue(v)
		}

		rs.Rows = append(rs.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return domain.ResultSet{}, false, fmt.Errorf("iterate rows: %w", err)
	}

	return rs, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
