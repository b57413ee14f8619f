package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbaity/herald/internal/config"
	"github.com/pbaity/herald/internal/consumer/audit"
	"github.com/pbaity/herald/internal/consumer/notify"
	"github.com/pbaity/herald/internal/consumer/recurrence"
	syncconsumer "github.com/pbaity/herald/internal/consumer/sync"
	"github.com/pbaity/herald/internal/idempotency"
	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/internal/outbox"
	"github.com/pbaity/herald/internal/publish"
	"github.com/pbaity/herald/internal/reminder"
	"github.com/pbaity/herald/internal/server"
	"github.com/pbaity/herald/internal/sidecar"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the herald services",
	Long:  `Starts the HTTP server, the enabled consumers, and the outbox dispatcher, then runs until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe(getConfigPath())
	},
}

func runServe(configPath string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration from '%s': %v\n", configPath, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Application, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.L()
	log.Info("Herald starting...", "config", configPath)

	// One sidecar client is shared by everything that talks to the
	// broker, state store, scheduler, or other services.
	client := sidecar.New(cfg.Sidecar)
	publisher := publish.NewPublisher(client, cfg.Sidecar.PubSubName, cfg.Publish)
	scheduler := reminder.NewScheduler(client, cfg.Reminder.CallbackRoute)

	intentQueue := outbox.NewQueue(cfg.Application.OutboxCapacity, cfg.Application.OutboxPath)
	dispatcher := outbox.NewDispatcher(cfg.Application, intentQueue, outbox.NewSidecarProcessor(publisher, scheduler))

	checkerFor := func(scope string) idempotency.Checker {
		if cfg.Idempotency.Backend == "redis" {
			return idempotency.NewRedisChecker(cfg.Idempotency.Redis, scope, cfg.Idempotency.TTLSeconds)
		}
		return idempotency.NewStoreChecker(client, cfg.Sidecar.StateStore, scope, cfg.Idempotency.TTLSeconds)
	}

	opts := server.Options{Outbox: intentQueue}

	var auditStore *audit.Store
	if cfg.Consumers.Audit.Enabled {
		auditStore, err = audit.Open(cfg.Consumers.Audit.DBPath)
		if err != nil {
			log.Error("Failed to open audit database", "path", cfg.Consumers.Audit.DBPath, "error", err)
			os.Exit(1)
		}
		auditConsumer := audit.New(auditStore, checkerFor(audit.Scope))
		opts.Endpoints = append(opts.Endpoints, auditConsumer.Endpoints(cfg.Sidecar.PubSubName)...)
		opts.AuditQuery = auditConsumer.QueryHandler()
		log.Info("Audit consumer enabled", "db_path", cfg.Consumers.Audit.DBPath)
	}
	if cfg.Consumers.Notification.Enabled {
		opts.Endpoints = append(opts.Endpoints, notify.New(checkerFor(notify.Scope)).Endpoints(cfg.Sidecar.PubSubName)...)
		log.Info("Notification consumer enabled")
	}
	if cfg.Consumers.Recurrence.Enabled {
		rc := recurrence.New(client, cfg.Consumers.Recurrence.ProducerAppID, checkerFor(recurrence.Scope))
		opts.Endpoints = append(opts.Endpoints, rc.Endpoints(cfg.Sidecar.PubSubName)...)
		log.Info("Recurrence consumer enabled", "producer_app_id", cfg.Consumers.Recurrence.ProducerAppID)
	}
	if cfg.Consumers.Sync.Enabled {
		sc := syncconsumer.New(syncconsumer.NewHub(), checkerFor(syncconsumer.Scope))
		opts.Endpoints = append(opts.Endpoints, sc.Endpoints(cfg.Sidecar.PubSubName)...)
		opts.SyncClients = sc.Hub().Handler()
		log.Info("Sync consumer enabled")
	}

	httpServer := server.NewHTTPServer(cfg, opts)

	log.Info("Starting services...")
	if err := intentQueue.Start(); err != nil {
		log.Error("Failed to start outbox", "error", err)
		os.Exit(1)
	}
	dispatcher.Start()
	httpServer.Start()
	log.Info("All services started", "listen_addr", cfg.Application.ListenAddr, "subscriptions", len(opts.Endpoints))

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stopChan
	log.Info("Received shutdown signal", "signal", sig.String())

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Stop order: HTTP server first so no new intents arrive, then the
	// dispatcher drains, then the queue persists whatever is left.
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping HTTP server", "error", err)
	}
	dispatcher.Stop()
	if err := intentQueue.Stop(); err != nil {
		log.Error("Error stopping outbox", "error", err)
	}
	if auditStore != nil {
		if err := auditStore.Close(); err != nil {
			log.Error("Error closing audit database", "error", err)
		}
	}

	log.Info("Herald shut down gracefully")
}
