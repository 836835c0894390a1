package signalctx

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// WithSignals returns a context canceled on SIGINT or SIGTERM. The received
// signal is also delivered on sigCh. Calling cancel stops signal delivery.
func WithSignals(parent context.Context) (ctx context.Context, cancel context.CancelFunc, sigCh <-chan os.Signal) {
	ctx, cancelCtx := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	out := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(c)
		select {
		case <-ctx.Done():
		case sig := <-c:
			slog.Warn("signal received, canceling", "signal", sig)
			out <- sig
			cancelCtx()
		}
	}()

	return ctx, cancelCtx, out
}
