// Package planexec obtains EXPLAIN documents from PostgreSQL with planner switches applied to a
// single transaction.
package planexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mickamy/plancost/internal/explore"
)

var tracer = otel.Tracer("plancost/internal/planexec")

// Options customises how EXPLAIN is executed.
type Options struct {
	Timeout time.Duration
	// Analyze runs the statement. It still executes inside a transaction that is rolled back.
	Analyze bool
	Buffers bool
	// Configuration turns planner switches off for this statement only.
	Configuration explore.Configuration
}

// ConnectOptions tunes pool creation.
type ConnectOptions struct {
	// MaxConns caps every per-database pool. Zero keeps the pgxpool default.
	MaxConns int32
	// Retries is the number of additional ping attempts before giving up.
	Retries uint64
}

// Executor explains queries through one pgxpool per database. Every Explain runs in its own
// pooled connection and transaction, so concurrent calls never share switch state.
type Executor struct {
	base  *pgxpool.Config
	opts  ConnectOptions
	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

var _ explore.Executor = (*Executor)(nil)

// Connect parses dsn, opens a pool for its database and pings it with exponential backoff.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*Executor, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("planexec: empty DSN")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("planexec: parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	e := &Executor{base: cfg, opts: opts, pools: map[string]*pgxpool.Pool{}}
	if _, err := e.Pool(ctx, ""); err != nil {
		return nil, err
	}
	return e, nil
}

// Pool returns the pool for database, opening and pinging it on first use. An empty name is the
// database of the DSN.
func (e *Executor) Pool(ctx context.Context, database string) (*pgxpool.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pool, ok := e.pools[database]; ok {
		return pool, nil
	}
	cfg := e.base.Copy()
	if database != "" {
		cfg.ConnConfig.Database = database
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("planexec: connect %s: %w", cfg.ConnConfig.Database, err)
	}
	if err := ping(ctx, pool, e.opts.Retries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("planexec: ping %s: %w", cfg.ConnConfig.Database, err)
	}
	e.pools[database] = pool
	return pool, nil
}

func ping(ctx context.Context, pool *pgxpool.Pool, retries uint64) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	return backoff.Retry(func() error {
		err := pool.Ping(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// the server answered; authentication or a missing database will not heal
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// Close closes every pool.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, pool := range e.pools {
		pool.Close()
		delete(e.pools, name)
	}
}

// Explain returns the EXPLAIN (FORMAT JSON) document for query with cfg applied.
func (e *Executor) Explain(ctx context.Context, database, query string, cfg explore.Configuration) ([]byte, error) {
	pool, err := e.Pool(ctx, database)
	if err != nil {
		return nil, err
	}
	return explainIn(ctx, pool, database, Statement(query, Options{Configuration: cfg}), cfg)
}

// Databases lists the databases that accept connections.
func (e *Executor) Databases(ctx context.Context) ([]string, error) {
	pool, err := e.Pool(ctx, "")
	if err != nil {
		return nil, err
	}
	query, args, err := sq.Select("datname").
		From("pg_database").
		Where(sq.Eq{"datistemplate": false, "datallowconn": true}).
		OrderBy("datname").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("planexec: build query: %w", err)
	}
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("planexec: list databases: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("planexec: list databases: %w", err)
	}
	return names, nil
}

// Run connects to dsn once and executes EXPLAIN for the statement.
func Run(ctx context.Context, dsn, sqlStatement string, opts Options) ([]byte, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("planexec: empty DSN")
	}
	if strings.TrimSpace(sqlStatement) == "" {
		return nil, fmt.Errorf("planexec: empty sql statement")
	}

	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("planexec: connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	return explainIn(ctx, conn, conn.Config().Database, Statement(sqlStatement, opts), opts.Configuration)
}

// Statement builds the EXPLAIN statement for query.
func Statement(query string, opts Options) string {
	parts := make([]string, 0, 3)
	if opts.Analyze {
		parts = append(parts, "ANALYZE")
	}
	if opts.Buffers {
		parts = append(parts, "BUFFERS")
	}
	parts = append(parts, "FORMAT JSON")
	query = strings.TrimRight(strings.TrimSpace(query), ";")
	return fmt.Sprintf("EXPLAIN (%s) %s", strings.Join(parts, ", "), query)
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

const setConfigSQL = "SELECT set_config($1, $2, true)"

// explainIn runs statement in a fresh transaction after turning off the switches cfg forbids.
// set_config with is_local makes every setting transaction-scoped, and the transaction is
// always rolled back.
func explainIn(ctx context.Context, db beginner, database, statement string, cfg explore.Configuration) (_ []byte, err error) {
	ctx, span := tracer.Start(ctx, "Explain", trace.WithAttributes(
		attribute.String("db.name", database),
		attribute.String("configuration", cfg.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "explain failed")
		}
		span.End()
	}()

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("planexec: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	for _, s := range cfg.Forbidden() {
		if _, err := tx.Exec(ctx, setConfigSQL, s.Setting(), "off"); err != nil {
			return nil, fmt.Errorf("planexec: set %s: %w", s.Setting(), err)
		}
	}

	var payload []byte
	if err := tx.QueryRow(ctx, statement).Scan(&payload); err != nil {
		return nil, fmt.Errorf("planexec: query: %w", err)
	}
	return payload, nil
}
