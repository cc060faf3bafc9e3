package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	rollupcli "github.com/gramscope/gramscope/app/rollup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	defer cancel()

	code := rollupcli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
