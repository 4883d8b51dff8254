package cmd

import (
	"context"
	"os/signal"
	"syscall"
)

// notifyContext cancels on SIGINT/SIGTERM. Aborting between a checkpoint
// and the next request is safe: the rerun re-issues the same token.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
