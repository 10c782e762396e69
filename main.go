// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/droidpilot/droidpilot-cli/cmd"
)

// main is the entry point for the droidpilot CLI.
func main() {
	// Interrupt signals cancel the command context; commands translate that
	// into a graceful abort of the active run or server.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
