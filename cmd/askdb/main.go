package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/askdb/askdb/internal/cli/askdb"
)

// version is stamped by the build via -ldflags.
var version = "dev"

func main() {
	// A missing .env file is fine, the environment may be set directly.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := askdb.NewRoot(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "askdb: %v\n", err)
		os.Exit(1)
	}
}
