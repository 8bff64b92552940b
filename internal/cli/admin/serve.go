package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognidex/cognidex/internal/api/handlers"
	"github.com/cognidex/cognidex/internal/archive"
	"github.com/cognidex/cognidex/internal/commit"
	"github.com/cognidex/cognidex/internal/config"
	"github.com/cognidex/cognidex/internal/discovery"
	"github.com/cognidex/cognidex/internal/embedding"
	"github.com/cognidex/cognidex/internal/migrations"
	"github.com/cognidex/cognidex/internal/registry"
	"github.com/cognidex/cognidex/internal/server"
	"github.com/cognidex/cognidex/internal/session"
	"github.com/cognidex/cognidex/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the cognidex API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.SentryEnv,
			TracesSampleRate: cfg.SentrySampleRate,
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

	// Run migrations unless --no-migrate is set. Only a relational index
	// backend has schema to migrate.
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if target := cfg.MigrateTarget(); target != "" {
			if err := migrations.Run(target); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		} else {
			log.Println("migrations: no postgres index backend configured, skipping")
		}
	}

	backends, err := cfg.Backends()
	if err != nil {
		return err
	}
	reg, err := registry.Build(ctx, backends)
	if err != nil {
		return fmt.Errorf("failed to build backend registry: %w", err)
	}
	defer reg.Close()
	for _, status := range reg.Snapshot() {
		log.Printf("backend ready: %s (%s) roles=%v", status.Name, status.Kind, status.Roles)
	}

	coordinator := commit.New(reg)
	sessions := session.New(coordinator, reg)

	var discoveryOpts []discovery.Option
	var spooler *archive.Spooler
	if cfg.HasS3() {
		s3Client, err := archive.NewS3Client(ctx, archive.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 audit bucket '%s' ready", cfg.S3Bucket)

		spooler = archive.NewSpooler(s3Client)
		go spooler.Start(ctx)
		discoveryOpts = append(discoveryOpts, discovery.WithAuditSink(spooler))
	}

	var embedder discovery.Embedder
	if cfg.HasOpenAI() {
		embedder = embedding.NewClient(cfg.OpenAIAPIKey)
	} else {
		log.Println("no embedding provider configured, discovery disabled")
		embedder = &noOpEmbedder{}
	}

	engine := discovery.New(reg, embedder, discoveryOpts...)

	router := server.NewRouter(server.RouterConfig{
		CommitHandler:   handlers.NewCommitHandler(coordinator, cfg.CommitTimeout),
		DiscoverHandler: handlers.NewDiscoverHandler(engine, cfg.DiscoverTimeout, cfg.DefaultTopK),
		SessionHandler:  handlers.NewSessionHandler(sessions),
		BackendsHandler: handlers.NewBackendsHandler(reg),
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

	if spooler != nil {
		spooler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

type noOpEmbedder struct{}

func (*noOpEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding provider not configured: OPENAI_API_KEY required")
}
