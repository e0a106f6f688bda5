package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/st3v3nmw/mutexcheck/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.New().Run(ctx, os.Args)
	stop()

	code := cli.ExitCode(err)
	if code == cli.ExitError {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}
