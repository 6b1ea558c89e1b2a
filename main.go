package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/cedar-go/cmd"
	"github.com/tphakala/cedar-go/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	appCtx := &app.Context{}
	rootCmd := cmd.RootCommand(appCtx)
	err := rootCmd.ExecuteContext(ctx)

	// PersistentPostRunE does not run after a failed command.
	_ = appCtx.Close()
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
