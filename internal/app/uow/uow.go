package uow

import (
	"context"

	domainlistings "staykeeper/internal/domain/listings"
)

// UnitOfWork groups the repository calls of one operation into a single
// commit. Nothing written through it is visible to others before Commit.
type UnitOfWork interface {
	Listings() domainlistings.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}

// ContextInjector is implemented by units that carry a driver session which
// repositories pick up from the context.
type ContextInjector interface {
	InjectContext(ctx context.Context) context.Context
}

// Begin starts a unit and returns the context repositories must be called with.
func Begin(ctx context.Context, factory UoWFactory, opts TxOptions) (UnitOfWork, context.Context, error) {
	if factory == nil {
		return nil, ctx, ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return nil, ctx, err
	}
	execCtx := ctx
	if injector, ok := unit.(ContextInjector); ok {
		execCtx = injector.InjectContext(ctx)
	}
	return unit, ContextWithUnitOfWork(execCtx, unit), nil
}
