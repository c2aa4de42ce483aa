package storage

import (
	"context"
	"errors"

	"github.com/DemianF-dev/7pet-mvp-sub007/libs/db"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/lifecycle"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

// Store is the PostgreSQL implementation of lifecycle.Store.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewStore(pool *db.Pool, events *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: events}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx lifecycle.Tx) error) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, outbox: s.outbox})
	})
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

var _ lifecycle.Tx = (*pgTx)(nil)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return lifecycle.ErrNotFound
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
