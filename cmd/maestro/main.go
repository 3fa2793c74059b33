// Maestro server — the conversational orchestration core for the BSA CRM
// assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/advisorkit/maestro/pkg/api"
	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/config"
	"github.com/advisorkit/maestro/pkg/coordinator"
	"github.com/advisorkit/maestro/pkg/database"
	"github.com/advisorkit/maestro/pkg/dedupe"
	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/planner"
	"github.com/advisorkit/maestro/pkg/resilience"
	"github.com/advisorkit/maestro/pkg/services"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()

	// Stores: Postgres in production, in-memory in stub mode.
	var (
		dbClient    *database.Client
		checkpoints coordinator.CheckpointStore
		dedupeStore dedupe.Store
		purge       func(context.Context, time.Time) (int64, error)
	)
	if cfg.BSA.Stub {
		log.Println("Running in stub mode: in-memory gateway and stores")
		checkpoints = services.NewMemCheckpointService()
		memDedupe := services.NewMemDedupeService()
		dedupeStore = memDedupe
		purge = memDedupe.Purge
	} else {
		dbClient, err = database.NewClient(ctx, database.FromConfig(cfg.Database))
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				log.Printf("Error closing database client: %v", err)
			}
		}()
		log.Println("✓ Connected to PostgreSQL database")

		checkpointSvc := services.NewCheckpointService(dbClient.Pool())
		dedupeSvc := services.NewDedupeService(dbClient.Pool())
		checkpoints = checkpointSvc
		dedupeStore = dedupeSvc
		purge = dedupeSvc.Purge
	}

	// Gateway factory: one bound gateway per run.
	var gatewayFactory coordinator.GatewayFactory
	if cfg.BSA.Stub {
		stub := bsa.NewStubGateway()
		gatewayFactory = func(bsa.Auth) bsa.Gateway { return stub }
	} else {
		client := bsa.NewClient(cfg.BSA.BaseURL, cfg.BSA.Timeout.Std())
		gatewayFactory = client.Bind
	}

	// Memory provider.
	var memSvc memory.Service = memory.NopService{}
	if cfg.Memory.ProviderURL != "" {
		memSvc = memory.NewHTTPService(cfg.Memory.ProviderURL, cfg.Memory.Timeout.Std())
		log.Println("✓ Memory provider configured")
	}

	// Planner, optionally LLM-assisted.
	var extractor planner.Extractor
	if cfg.Planner.LLMExtraction {
		apiKey := os.Getenv(cfg.Planner.APIKeyEnv)
		if apiKey == "" {
			log.Printf("Warning: %s not set; planner runs keyword-only", cfg.Planner.APIKeyEnv)
		} else {
			extractor = planner.NewAnthropicExtractor(apiKey, cfg.Planner.Model)
			log.Println("✓ LLM extraction enabled")
		}
	}

	executor := resilience.NewExecutor(resilience.Settings{
		MaxRetries:       cfg.Resilience.MaxRetries,
		InitialDelay:     cfg.Resilience.InitialDelay.Std(),
		MaxDelay:         cfg.Resilience.MaxDelay.Std(),
		Multiplier:       cfg.Resilience.Multiplier,
		FailureThreshold: cfg.Resilience.FailureThreshold,
		ResetTimeout:     cfg.Resilience.ResetTimeout.Std(),
		HalfOpenMax:      cfg.Resilience.HalfOpenMax,
	})

	coord := coordinator.New(coordinator.Options{
		Config:      cfg,
		Checkpoints: checkpoints,
		DedupeStore: dedupeStore,
		Executor:    executor,
		Memory:      memSvc,
		Planner:     planner.New(extractor),
		Gateway:     gatewayFactory,
	})
	log.Println("✓ Coordinator initialized")

	// Background purge of expired dedupe rows.
	purgeCtx, cancelPurge := context.WithCancel(ctx)
	defer cancelPurge()
	go runDedupePurge(purgeCtx, purge, cfg.Dedupe)

	server := api.NewServer(coord, dbClient)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Router(),
	}

	go func() {
		log.Printf("HTTP server listening on :%d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// runDedupePurge deletes expired dedupe rows on an interval. Rows live for
// twelve windows before removal, far past any lookup horizon.
func runDedupePurge(ctx context.Context, purge func(context.Context, time.Time) (int64, error), cfg *config.DedupeConfig) {
	ticker := time.NewTicker(cfg.PurgeInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-12 * cfg.Window.Std())
			if n, err := purge(ctx, cutoff); err != nil {
				log.Printf("Dedupe purge failed: %v", err)
			} else if n > 0 {
				log.Printf("Dedupe purge removed %d rows", n)
			}
		}
	}
}
