package middleware

import (
	"context"
	"log/slog"

	"staykeeper/internal/app/commands"
	"staykeeper/internal/app/outbox"
)

// OutboxFlush hands committed records to the outbox once a command succeeds.
// A failed flush is logged only: the state change is already committed and
// the records stay queued for the next flush.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := nextFn(ctx, cmd)
			if flushErr := box.Flush(ctx); flushErr != nil {
				logger.WarnContext(ctx, "outbox flush failed", "command", cmd.Key(), "error", flushErr)
			}
			if err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
