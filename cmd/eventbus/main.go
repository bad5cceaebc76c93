// Command eventbus runs an event bus daemon and inspects handler manifests.
//
//	eventbus serve --config eventbus.yaml
//	eventbus topics --manifest handlers.yaml --source billing
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "eventbus:", err)
		os.Exit(1)
	}
}
