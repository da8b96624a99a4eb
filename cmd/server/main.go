package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/api"
	"voice-trading-assistant-go/internal/app"
	"voice-trading-assistant-go/internal/realtime"
)

func main() {
	cfg, log, err := app.Bootstrap("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("Failed to release resources", zap.Error(err))
		}
	}()

	server := api.NewServer(cfg.Server, api.Options{
		Pipeline: a.Engine,
		Voice:    a.ElevenLabs,
		Realtime: realtime.NewHandler(a.Engine, log, a.Metrics),
		Metrics:  a.MetricsHandler(),
	}, log)
	server.Start()
	log.Info("WebSocket server ready", zap.String("path", "/ws"))

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server has been shut down.")
}
