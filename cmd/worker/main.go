package main

import (
	"context"
	"os/signal"
	"syscall"

	workerrollups "github.com/gramscope/gramscope/app/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	defer cancel()

	app := workerrollups.Initialize(ctx)

	app.Start(ctx)
}
