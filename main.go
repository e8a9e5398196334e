// Package main runs the receipt geometry HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"receipt-geometry/internal/config"
	"receipt-geometry/internal/logging"
	"receipt-geometry/internal/scan"
	"receipt-geometry/internal/server"
	"receipt-geometry/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $"+config.EnvConfig+" or the user config dir)")
	addr := flag.String("addr", "", "Listen address, overrides the config")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	logger.WithField("version", version.Version).WithField("config", cfg.Path()).Info("starting receipt-geometry")

	engine, err := scan.New(cfg.Scan, logging.Component(logger, "scan"))
	if err != nil {
		logger.WithError(err).Fatal("failed to build pipeline")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(engine, cfg.Server, logging.Component(logger, "http"))
	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
	logger.Info("stopped")
}
