package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/arborsync/arbor/internal/config"
	"github.com/arborsync/arbor/pkg/logger"
	"github.com/arborsync/arbor/pkg/oplog"
	"github.com/arborsync/arbor/pkg/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing ARBOR_LOG_LEVEL: %w", err)
	}
	log := logger.NewWithLevel(os.Stderr, level)

	storeOpts := []server.Option{
		server.WithLogger(log),
		server.WithQueueSize(cfg.QueueSize),
	}
	if cfg.OplogPath != "" {
		f, err := os.OpenFile(cfg.OplogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening oplog: %w", err)
		}
		defer f.Close()
		storeOpts = append(storeOpts, server.WithSink(oplog.NewWriter(f)))
		log.Info("oplog enabled", "path", cfg.OplogPath)
	}

	store := server.NewStore(storeOpts...)
	srv := server.NewServer(cfg.Addr, store, log)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", "signal", s.String())
	return srv.Stop()
}
