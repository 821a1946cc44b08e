package httpapi

import (
	"context"
)

// serverBaseCtx ends when the process abandons in-flight work on shutdown.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level context that bounds all processing.
// nil restores context.Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// shuttingDown reports whether the process has abandoned in-flight work.
func shuttingDown() bool { return serverBaseCtx.Err() != nil }

// joinContexts derives from req, keeping its values, and additionally ends
// when base does. cancel must be called when the handler returns.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
