package stats

import (
	"context"
	"errors"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgx used by Postgres. *pgxpool.Pool and *pgx.Conn satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres answers statistics from the PostgreSQL catalog: pg_class for blocks and tuples,
// pg_settings for shared_buffers and pg_stats for distinct values.
// Relations are looked up in the schemas on the current search_path.
type Postgres struct {
	db Querier
}

var _ Provider = (*Postgres)(nil)

// NewPostgres returns a catalog-backed provider.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func relationQuery(column, relation string) sq.SelectBuilder {
	return psql.Select(column).
		From("pg_class c").
		Join("pg_namespace n ON n.oid = c.relnamespace").
		Where(sq.Eq{"c.relname": relation}).
		Where("n.nspname = ANY(current_schemas(false))").
		Limit(1)
}

func (p *Postgres) queryRow(ctx context.Context, b sq.SelectBuilder, dest any) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return p.db.QueryRow(ctx, query, args...).Scan(dest)
}

func (p *Postgres) BlockCount(ctx context.Context, relation string) (int64, error) {
	var pages int64
	if err := p.queryRow(ctx, relationQuery("c.relpages::bigint", relation), &pages); err != nil {
		return 0, unavailable(StatBlocks, relation, "", describe(err))
	}
	return pages, nil
}

func (p *Postgres) TupleCount(ctx context.Context, relation string) (int64, error) {
	var tuples float64
	if err := p.queryRow(ctx, relationQuery("c.reltuples::float8", relation), &tuples); err != nil {
		return 0, unavailable(StatTuples, relation, "", describe(err))
	}
	if tuples < 0 {
		return 0, unavailable(StatTuples, relation, "", errors.New("relation has not been analyzed"))
	}
	return int64(math.Round(tuples)), nil
}

func (p *Postgres) BufferSize(ctx context.Context) (int64, error) {
	b := psql.Select("setting::bigint").
		From("pg_settings").
		Where(sq.Eq{"name": "shared_buffers"})
	var blocks int64
	if err := p.queryRow(ctx, b, &blocks); err != nil {
		return 0, unavailable(StatBuffer, "", "", describe(err))
	}
	return blocks, nil
}

// DistinctCount reads pg_stats.n_distinct. Negative values are a fraction of the row count
// and are scaled by T(rel).
func (p *Postgres) DistinctCount(ctx context.Context, relation, attribute string) (int64, error) {
	b := psql.Select("s.n_distinct::float8").
		From("pg_stats s").
		Where(sq.Eq{"s.tablename": relation, "s.attname": attribute}).
		Where("s.schemaname = ANY(current_schemas(false))").
		Limit(1)
	var nDistinct float64
	if err := p.queryRow(ctx, b, &nDistinct); err != nil {
		return 0, unavailable(StatDistinct, relation, attribute, describe(err))
	}
	if nDistinct >= 0 {
		return int64(math.Round(nDistinct)), nil
	}
	tuples, err := p.TupleCount(ctx, relation)
	if err != nil {
		return 0, unavailable(StatDistinct, relation, attribute, err)
	}
	return int64(math.Round(-nDistinct * float64(tuples))), nil
}

func describe(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.New("not found in catalog")
	}
	return err
}
