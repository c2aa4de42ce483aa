package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals stop the service. SIGTERM comes from the orchestrator, SIGINT from a terminal.
var ShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// SignalContext is cancelled on the first shutdown signal. A second signal is left to
// the default handler, so an operator can still force the process down while
// background work drains.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), ShutdownSignals...)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}
