package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"certificate-portal/certificate-portal-backend/internal/admin"
	"certificate-portal/certificate-portal-backend/internal/certificates"
	"certificate-portal/certificate-portal-backend/internal/config"
	"certificate-portal/certificate-portal-backend/internal/document"
	"certificate-portal/certificate-portal-backend/internal/ledger"
	"certificate-portal/certificate-portal-backend/internal/ledger/snapshot"
	"certificate-portal/certificate-portal-backend/internal/notifications"
	"certificate-portal/certificate-portal-backend/internal/observability"
	"certificate-portal/certificate-portal-backend/pkg/convert"
	"certificate-portal/certificate-portal-backend/pkg/qrcode"
	"certificate-portal/certificate-portal-backend/pkg/storage"
)

func main() {
	configPath := flag.String("config", "config.json", "path to a JSON or YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server exiting")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Template is read once; a bad template stops startup
	tmpl, err := document.LoadTemplate(cfg.Template.Path, cfg.Template.Base64)
	if err != nil {
		return err
	}
	renderer, err := document.NewRenderer(tmpl, cfg.DocumentOptions())
	if err != nil {
		return err
	}

	encoder, err := qrcode.NewEncoder(cfg.QRCode)
	if err != nil {
		return err
	}

	converter, err := convert.New(cfg.ConverterOptions(), logger.Named("convert"))
	if err != nil {
		return err
	}

	sender, err := notifications.NewSender(ctx, cfg.MailOptions(), logger.Named("mail"))
	if err != nil {
		return err
	}
	mailer := notifications.NewMailer(sender, cfg.MailOptions(), logger.Named("mail"))

	store, err := ledger.New(ctx, cfg.LedgerOptions())
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	logger.Info("Ledger ready", zap.String("backend", cfg.Ledger.Backend))

	metrics := observability.NewMetrics()

	deps := certificates.Dependencies{
		Encoder:   encoder,
		Renderer:  renderer,
		Converter: converter,
		Notifier:  mailer,
		Ledger:    store,
		Metrics:   metrics,
	}

	var (
		linker    certificates.ArtifactLinker
		s3Client  storage.S3Client
		scheduler *snapshot.Scheduler
	)
	if cfg.Storage.Bucket != "" {
		s3Client, err = newS3Client(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		archive, err := storage.NewArtifactStore(s3Client, cfg.Storage.Bucket, cfg.Storage.Prefix)
		if err != nil {
			return err
		}
		deps.Archive = archive
		linker = archive
		logger.Info("Archiving certificates", zap.String("bucket", cfg.Storage.Bucket))
	}

	if cfg.Snapshot.Cron != "" && s3Client != nil {
		sink, err := storage.NewArtifactStore(s3Client, cfg.Storage.Bucket, cfg.Snapshot.Prefix)
		if err != nil {
			return err
		}
		scheduler, err = snapshot.NewScheduler(store, sink, snapshot.Config{
			Cron:     cfg.Snapshot.Cron,
			Format:   cfg.Snapshot.Format,
			Timezone: cfg.Snapshot.Timezone,
			Timeout:  cfg.Timeouts.Archive.Std(),
		}, logger.Named("snapshot"))
		if err != nil {
			return err
		}
	}

	if cfg.Alerts.TopicARN != "" {
		alerter, err := notifications.NewSNSAlerterFromConfig(ctx, notifications.AlertConfig{
			TopicARN: cfg.Alerts.TopicARN,
			Region:   cfg.Alerts.Region,
		})
		if err != nil {
			return err
		}
		deps.Alerter = alerter
		logger.Info("Failure alerts enabled", zap.String("topic", cfg.Alerts.TopicARN))
	}

	service, err := certificates.NewService(certificates.Config{
		ScratchDir: cfg.Server.ScratchDir,
		Timeouts: certificates.Timeouts{
			Encode:  cfg.Timeouts.Encode.Std(),
			Convert: cfg.Timeouts.Convert.Std(),
			Notify:  cfg.Timeouts.Notify.Std(),
			Ledger:  cfg.Timeouts.Ledger.Std(),
			Archive: cfg.Timeouts.Archive.Std(),
		},
	}, deps, logger.Named("certificates"))
	if err != nil {
		return err
	}

	var sessions *admin.Sessions
	if cfg.Admin.KeyHash != "" {
		sessions, err = admin.NewHashedSessions(cfg.Admin.KeyHash, cfg.Admin.SessionSecret, cfg.Admin.SessionTTL.Std())
	} else {
		sessions, err = admin.NewSessions(cfg.Admin.Key, cfg.Admin.SessionSecret, cfg.Admin.SessionTTL.Std())
	}
	if err != nil {
		return err
	}

	if scheduler != nil {
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
		logger.Info("Ledger snapshots scheduled",
			zap.String("cron", cfg.Snapshot.Cron),
			zap.Time("next", scheduler.Next()),
		)
	}

	certificateHandler := certificates.NewHandler(service, linker, logger.Named("http"))
	adminHandler := admin.NewHandler(store, sessions, admin.Options{
		Timeout:      cfg.Timeouts.Ledger.Std(),
		SecureCookie: cfg.Admin.SecureCookie,
	}, logger.Named("admin"))

	// Setup Router
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), observability.RequestLogger(logger), metrics.HTTPMiddleware())

	certificateHandler.RegisterRoutes(router)
	adminHandler.RegisterRoutes(router)

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("Server started", zap.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	// Graceful Shutdown
	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func newS3Client(ctx context.Context, cfg config.StorageConfig) (storage.S3Client, error) {
	client, err := storage.NewS3Client(ctx, storage.S3Config{
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		PathStyle: cfg.PathStyle,
		Prefix:    cfg.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return client, nil
}
