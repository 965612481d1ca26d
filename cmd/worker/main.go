package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gitlab.com/vidfleet.net/internal/adapter/logging"
	"gitlab.com/vidfleet.net/internal/workeragent"
)

func main() {
	configPath := flag.String("config", "worker.yaml", "path to the worker config file")
	flag.Parse()

	cfg, err := workeragent.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.CoordinatorURL == "" || cfg.WorkerID == "" {
		log.Fatalf("coordinator_url and worker_id are required")
	}

	logger := logging.NewZapLogger()

	client, err := workeragent.NewCoordinatorClient(cfg)
	if err != nil {
		logger.Error("Failed to build coordinator client", "error", err)
		os.Exit(1)
	}

	// Platform adapters are registered per deployment; the agent refuses
	// jobs for platforms it has no adapter for.
	adapters := map[string]workeragent.PlatformAdapter{}

	agent, err := workeragent.NewAgent(cfg, client, adapters, logger)
	if err != nil {
		logger.Error("Failed to build agent", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	if err := agent.Run(ctx); err != nil {
		logger.Error("Agent exited with error", "error", err)
		os.Exit(1)
	}
}
