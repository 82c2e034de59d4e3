// Package main is the entry point for vpaidd, the VPAID host bridge
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/thenexusengine/tne_vpaid/internal/config"
	"github.com/thenexusengine/tne_vpaid/pkg/logger"
)

func main() {
	cfg := ParseConfig()

	logger.Init(logger.DefaultConfig())
	log := logger.Log

	server, err := NewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		// Start only returns early when the listener fails
		if err != nil {
			log.Error().Err(err).Msg("Server error")
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
}
