package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/voicerag/internal/api/handlers"
	"github.com/cloo-solutions/voicerag/internal/config"
	"github.com/cloo-solutions/voicerag/internal/domain"
	"github.com/cloo-solutions/voicerag/internal/jobs"
	"github.com/cloo-solutions/voicerag/internal/server"
	"github.com/cloo-solutions/voicerag/internal/telemetry"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build the retrieval index and start the API server",
		Long:  "Build or load the catalog retrieval index, then serve retrieval and relevance queries over HTTP",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("force-rebuild", false, "Rebuild the index even if the persisted build is fresh")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := connectPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	idx, _ := newRetrievalIndex(cfg, pool)

	// The index is built before the server accepts traffic. A failed
	// build leaves the service up in degraded mode: health reports the
	// uninitialized state, retrieval returns empty context, and keyword
	// relevance still works.
	var stalenessWorker *jobs.Worker
	if cfg.HasOpenAI() {
		chunks, fingerprint, err := extractChunks(ctx, cfg)
		if err != nil {
			log.Printf("knowledge base load failed, serving without retrieval context: %v", err)
		} else {
			forceRebuild, _ := cmd.Flags().GetBool("force-rebuild")
			result, err := idx.BuildOrLoad(ctx, chunks, fingerprint, forceRebuild)
			if err != nil {
				log.Printf("index build failed, serving without retrieval context: %v", err)
			} else {
				if result.Rebuilt {
					log.Printf("index rebuilt: %d chunks", result.ChunkCount)
				} else {
					log.Printf("index loaded: %d chunks", result.ChunkCount)
				}

				monitor := jobs.NewStalenessMonitor(func(ctx context.Context) ([]domain.Chunk, string, error) {
					return extractChunks(ctx, cfg)
				}, result.ChunkCount, result.Fingerprint)
				stalenessWorker = jobs.NewWorker(monitor, cfg.StalenessInterval)
				go stalenessWorker.Start(ctx)
				log.Println("staleness monitor started")
			}
		}
	} else {
		log.Println("OPENAI_API_KEY not set, serving keyword-only relevance")
	}

	retrievalHandler := handlers.NewRetrievalHandler(idx)

	router := server.NewRouter(server.RouterConfig{
		RetrievalHandler: retrievalHandler,
		APIToken:         cfg.APIToken,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if stalenessWorker != nil {
		stalenessWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
