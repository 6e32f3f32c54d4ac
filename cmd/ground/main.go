package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/uxv-edge/cmd/ground/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var configPath string
	flag.StringVar(&configPath, "c", "", "Path to the configuration file, defaults apply when omitted")
	flag.Parse()

	config := app.NewConfig()
	if configPath != "" {
		var err error
		if config, err = app.LoadConfig(configPath); err != nil {
			logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
			os.Exit(1)
		}
	}

	out, logFile := app.LogWriter(config.Settings.LogFile, os.Stdout)
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: &logLevel}))

	level, _ := config.Settings.Level() // validated on load
	logLevel.Set(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := app.Run(ctx, config, logger)
	cancel()

	if err != nil {
		logger.Error(err.Error())

		_ = logFile.Close()
		os.Exit(1)
	}
	_ = logFile.Close()
}
