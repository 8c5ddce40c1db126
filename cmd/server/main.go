package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/jobboard/api"
	dbfs "github.com/garnizeh/jobboard/db"
	"github.com/garnizeh/jobboard/internal/application"
	"github.com/garnizeh/jobboard/internal/auth"
	"github.com/garnizeh/jobboard/internal/blob"
	"github.com/garnizeh/jobboard/internal/config"
	"github.com/garnizeh/jobboard/internal/db"
	"github.com/garnizeh/jobboard/internal/listing"
	"github.com/garnizeh/jobboard/internal/repository/sqlite"
	"github.com/garnizeh/jobboard/internal/tasks"
	"github.com/garnizeh/jobboard/pkg/models"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	// A missing .env is fine; the environment may be set by other means.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	api.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting jobboard server", slog.String("version", version), slog.String("build_time", buildTime))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open database connection
	conn, err := db.New(ctx, db.FileDSN(cfg.DatabasePath), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(ctx, conn, dbfs.Migrations); err != nil {
		return err
	}
	repo := sqlite.New(conn, logger)

	stager, lockPath, err := newStager(ctx, cfg)
	if err != nil {
		return err
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenDuration)
	listings, err := listing.NewService(repo, listing.UpdateMode(cfg.ListingUpdateMode), logger)
	if err != nil {
		return err
	}
	logger.Info("listing updates configured", slog.String("mode", string(listings.Mode())))

	handler, err := api.SetupRoutes(cfg, version, buildTime, api.Services{
		Auth:         auth.NewService(repo, issuer, auth.NewHasher(bcrypt.DefaultCost), auth.PasswordPolicy{MinLength: cfg.PasswordMinLength}, logger),
		Guard:        auth.NewGuard(issuer),
		Listings:     listings,
		Applications: application.NewService(repo, repo, repo, stager, logger),
		Ping:         func(ctx context.Context) error { return conn.GetConn().PingContext(ctx) },
	})
	if err != nil {
		return err
	}

	// Background reclamation of blobs whose rows are gone.
	pool := tasks.NewWorkerPool(repo, map[string]tasks.Handler{
		models.TaskBlobDiscard: tasks.DiscardHandler(stager),
	}, logger, cfg.ReclaimWorkers)
	pool.Start(ctx)
	defer pool.Stop()

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Blob.SweepInterval > 0 {
		sweeper := blob.NewSweeper(stager, repo, cfg.Blob.OrphanMaxAge, lockPath, logger)
		g.Go(func() error {
			sweeper.Run(gctx, cfg.Blob.SweepInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newStager builds the configured blob backend and returns it with the path
// of the sweep lock file.
func newStager(ctx context.Context, cfg *config.Config) (blob.Stager, string, error) {
	policy := blob.Policy{MaxBytes: cfg.Blob.MaxBytes, Sniff: cfg.Blob.SniffContent}

	lockPath := cfg.Blob.SweepLockPath
	if lockPath == "" {
		lockPath = filepath.Join(os.TempDir(), "jobboard-sweep.lock")
	}

	switch cfg.Blob.Backend {
	case config.BackendS3:
		s, err := blob.NewS3Stager(ctx, blob.S3Config{
			Bucket:          cfg.Blob.S3Bucket,
			Region:          cfg.Blob.S3Region,
			Endpoint:        cfg.Blob.S3Endpoint,
			Prefix:          cfg.Blob.S3Prefix,
			AccessKeyID:     cfg.Blob.AWSAccessKeyID,
			SecretAccessKey: cfg.Blob.AWSSecretAccessKey,
		}, policy)
		return s, lockPath, err
	default:
		s, err := blob.NewLocalStager(cfg.Blob.UploadDir, policy)
		if err != nil {
			return nil, "", err
		}
		if cfg.Blob.SweepLockPath == "" {
			// List skips it since only valid handles are reported.
			lockPath = filepath.Join(s.Dir(), ".sweep.lock")
		}
		return s, lockPath, nil
	}
}
