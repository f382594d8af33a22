package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
)

// Postgres implements Store on top of database/sql and lib/pq.
type Postgres struct {
	db   *sql.DB
	opts database.TxOptions
}

func NewPostgres(db *sql.DB, opts database.TxOptions) *Postgres {
	return &Postgres{db: db, opts: opts}
}

func (p *Postgres) DB() *sql.DB {
	return p.db
}

func (p *Postgres) WithTx(ctx context.Context, fn func(Tx) error) error {
	return database.WithRetry(ctx, p.db, p.opts, func(tx *sql.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

type pgTx struct {
	q database.Querier
}

var _ Tx = (*pgTx)(nil)

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}
