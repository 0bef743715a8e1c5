package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/visit-service/internal/domain"
)

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// TxFromContext returns the transaction opened by WithinTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// Conn picks the ambient transaction when present, else the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// TxRunner opens one database transaction per core mutation.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner builds a runner over the pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithinTx runs fn inside a transaction and commits when fn returns nil.
// The session is exposed to row-level policies through transaction-local
// settings app.actor_id / app.role / app.org_id.
func (r *TxRunner) WithinTx(ctx context.Context, session domain.Session, fn func(ctx context.Context) error) error {
	if r == nil || r.pool == nil {
		return errors.New("postgres pool not configured")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const setSession = `SELECT set_config('app.actor_id', $1, true), set_config('app.role', $2, true), set_config('app.org_id', $3, true)`
	if _, err := tx.Exec(ctx, setSession, session.ActorID, string(session.Role), session.OrgID); err != nil {
		return fmt.Errorf("set session: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
