// Command vspherebroker serves vCenter operations to MCP clients behind
// token authorization, rate limiting and audit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonwraymond/vspherebroker/cmd/vspherebroker/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vspherebroker: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
