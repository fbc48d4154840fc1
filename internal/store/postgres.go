package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/stockorder/internal/database"
)

// Postgres is the database/sql backed Coordinator. Units of work run at the
// isolation level in opts; product reads inside them take row locks.
type Postgres struct {
	db   *sql.DB
	opts database.TxOptions
}

func NewPostgres(db *sql.DB, opts database.TxOptions) *Postgres {
	return &Postgres{db: db, opts: opts}
}

func (p *Postgres) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := database.BeginTx(ctx, p.db, p.opts)
	if err != nil {
		return nil, err
	}

	return &pgUnitOfWork{
		tx:       tx,
		products: &ProductRepo{q: tx, forUpdate: true},
		orders:   &OrderRepo{q: tx},
	}, nil
}

// Products returns a repo for reads and single-statement writes outside any
// unit of work.
func (p *Postgres) Products() *ProductRepo {
	return NewProductRepo(p.db)
}

func (p *Postgres) Orders() *OrderRepo {
	return NewOrderRepo(p.db)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

type pgUnitOfWork struct {
	tx       *sql.Tx
	products *ProductRepo
	orders   *OrderRepo
}

func (u *pgUnitOfWork) Products() ProductStore { return u.products }
func (u *pgUnitOfWork) Orders() OrderStore     { return u.orders }

func (u *pgUnitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (u *pgUnitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}
