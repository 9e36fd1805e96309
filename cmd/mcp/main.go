// File: cmd/mcp/main.go
// This is the main entrypoint for the standalone MCP server application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/tabpilot/cmd"
	"github.com/xkilldash9x/tabpilot/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Equivalent to `tabpilot serve`; remaining flags (--config, --addr,
	// --debugger-url) pass through.
	root := cmd.NewRootCommand()
	root.SetArgs(append([]string{"serve"}, os.Args[1:]...))
	err := root.ExecuteContext(ctx)
	observability.Sync()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
