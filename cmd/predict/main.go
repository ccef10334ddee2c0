package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/agropredict/internal/cli"
)

const runTimeout = 2 * time.Minute

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := cli.ParseArgs(args)
	if errors.Is(err, flag.ErrHelp) {
		cli.ShowHelp(os.Stdout)
		return 0
	}
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n\n")
		cli.ShowHelp(os.Stderr)
		return 2
	}

	if err := cli.SetupLogging(cfg); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if err := cli.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("predict: " + err.Error() + "\n")
		return 1
	}
	return 0
}
