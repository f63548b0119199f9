package middleware

import (
	"context"

	"staykeeper/internal/app/access"
	"staykeeper/internal/app/commands"
	"staykeeper/internal/app/queries"
)

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// ActorCommand is implemented by messages issued on behalf of a caller.
type ActorCommand interface {
	Principal() access.Actor
}

// RequireActor rejects actor-bearing messages whose caller is anonymous.
// Ownership is decided later, once the listing is loaded.
type RequireActor struct{}

func (RequireActor) Authorize(ctx context.Context, message any) error {
	msg, ok := message.(ActorCommand)
	if !ok {
		return nil
	}
	if !msg.Principal().Authenticated() {
		return access.ErrUnauthenticated
	}
	return nil
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := a.Authorize(ctx, cmd); err != nil {
				return nil, err
			}
			return nextFn(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := a.Authorize(ctx, q); err != nil {
				return nil, err
			}
			return nextFn(ctx, q)
		})
	}
}
