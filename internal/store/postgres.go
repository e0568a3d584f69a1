package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"adloader/internal/content"
)

// querier is the part of *pgxpool.Pool the Postgres store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS experiences (
	id text PRIMARY KEY,
	categories text[] NOT NULL DEFAULT '{}',
	data jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`

type Postgres struct {
	db querier
}

// NewPostgres wraps a pool, typically from pkg/db.Connect.
func NewPostgres(db querier) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, postgresSchema)
	return err
}

func (p *Postgres) Get(ctx context.Context, id string) (*content.Experience, error) {
	rec := record{ID: id}
	err := p.db.QueryRow(ctx, `SELECT categories, data FROM experiences WHERE id = $1`, id).
		Scan(&rec.Categories, &rec.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec.decode()
}

func (p *Postgres) Put(ctx context.Context, exp *content.Experience) error {
	rec, err := encode(exp)
	if err != nil {
		return err
	}
	categories := rec.Categories
	if categories == nil {
		categories = []string{}
	}
	_, err = p.db.Exec(ctx, `INSERT INTO experiences (id, categories, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET categories = EXCLUDED.categories, data = EXCLUDED.data, updated_at = now()`,
		rec.ID, categories, rec.Data)
	return err
}
