package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/uxv-edge/cmd/edge/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [host:port]\n\nEnvironment:\n  %s\tdebug, info, warn or error\n  %s\tmaximum wait for a stream acknowledgement, eg 5s\n",
			os.Args[0], app.LogLevelEnv, app.AckTimeoutEnv)
	}
	flag.Parse()

	config, err := app.ConfigFromArgs(flag.Args(), os.Getenv)
	if err != nil {
		logger.Error(fmt.Sprintf("invalid configuration: %s", err.Error()))
		os.Exit(1)
	}

	logLevel.Set(config.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}

	logger.Info("done")
}
