package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"neuroswarm/internal/config"
	"neuroswarm/internal/node"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	n, err := node.New(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to create node: %v", err)
	}

	if err := n.Start(ctx); err != nil {
		logrus.Fatalf("Failed to start node: %v", err)
	}

	// Wait for shutdown signal
	<-sigChan
	logrus.Info("Shutting down...")
	cancel()

	if err := n.Stop(); err != nil {
		logrus.Errorf("Error during shutdown: %v", err)
	}
}
