// File: cmd/evergreen/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rmcnulty/evergreen-cli/cmd"
	"github.com/rmcnulty/evergreen-cli/internal/observability"
)

func main() {
	// SIGINT/SIGTERM cancel the context; commands unwind through it and the
	// browser shuts down cleanly, keeping the persistent profile intact.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
