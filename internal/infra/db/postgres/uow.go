package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"staykeeper/internal/app/uow"
	domainlistings "staykeeper/internal/domain/listings"
)

var ErrUnitOfWorkNotConfigured = errors.New("postgres: unit of work factory missing pool")

// Factory opens one database transaction per unit. The outbox store joins
// it through the injected context.
type Factory struct {
	Pool     *pgxpool.Pool
	Listings *ListingRepository
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Pool == nil || f.Listings == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	var repo domainlistings.Repository = f.Listings
	if opts.ReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
		repo = readOnlyRepository{Repository: f.Listings}
	}
	tx, err := f.Pool.BeginTx(ctx, txOpts)
	if err != nil {
		return nil, err
	}
	return &Unit{tx: tx, listings: repo}, nil
}

type Unit struct {
	tx       pgx.Tx
	listings domainlistings.Repository
}

func (u *Unit) Listings() domainlistings.Repository {
	return u.listings
}

func (u *Unit) Commit(ctx context.Context) error {
	return u.tx.Commit(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return contextWithTx(ctx, u.tx)
}

type readOnlyRepository struct {
	domainlistings.Repository
}

func (readOnlyRepository) Save(context.Context, *domainlistings.Listing) error {
	return uow.ErrReadOnly
}

var (
	_ uow.UoWFactory      = Factory{}
	_ uow.ContextInjector = (*Unit)(nil)
)
