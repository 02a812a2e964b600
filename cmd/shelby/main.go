// Package main provides the entry point for the shelby CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driving/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	err := cli.Execute(ctx)
	if serr := cli.Shutdown(); serr != nil && err == nil {
		err = serr
	}
	stop()
	if err != nil {
		os.Exit(1)
	}
}
