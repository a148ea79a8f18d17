package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dataveil/privacy-sentinel/internal/cache"
	"github.com/dataveil/privacy-sentinel/internal/config"
	"github.com/dataveil/privacy-sentinel/internal/dsr"
	"github.com/dataveil/privacy-sentinel/internal/engine"
	"github.com/dataveil/privacy-sentinel/internal/export"
	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/dataveil/privacy-sentinel/internal/pii"
	"github.com/dataveil/privacy-sentinel/internal/server"
	"github.com/dataveil/privacy-sentinel/internal/store"
	"github.com/dataveil/privacy-sentinel/internal/websocket"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("privacy-sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting privacy-sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	services, err := buildServices(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.cleanup(log)

	eng, err := buildEngine(cfg, services, log)
	if err != nil {
		log.Fatal("Failed to create engine", zap.Error(err))
	}

	srvOpts := server.Options{
		Cache: services.detectionCache,
		Hub:   services.hub,
	}
	if services.store != nil {
		srvOpts.Store = services.store
	}
	srv := server.New(cfg, eng, srvOpts, log)
	server.Version = version

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// services holds the optional infrastructure built from configuration.
type services struct {
	detectionCache *cache.DetectionCache
	store          *store.Store
	userData       *store.UserData
	hub            *websocket.Hub
}

func (s *services) cleanup(log *logger.Logger) {
	if s.detectionCache != nil {
		if err := s.detectionCache.Close(); err != nil {
			log.Error("Failed to close cache", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Error("Failed to close store", zap.Error(err))
		}
	}
}

func buildServices(cfg *config.Config, log *logger.Logger) (*services, error) {
	svc := &services{}

	if cfg.Cache.Enabled {
		detectionCache, err := cache.NewDetectionCache(cache.Config{
			RedisURL:  cfg.Cache.RedisURL,
			TTL:       cfg.Cache.TTL,
			KeyPrefix: cfg.Cache.KeyPrefix,
		}, log.WithComponent("cache"))
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		svc.detectionCache = detectionCache
	}

	if cfg.Database.Enabled {
		db, err := store.New(store.Config{
			DatabaseURL:     cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, log.WithComponent("store"))
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		svc.store = db

		userData, err := store.NewUserData(db)
		if err != nil {
			return nil, fmt.Errorf("user data: %w", err)
		}
		svc.userData = userData
	}

	if cfg.WebSocket.Enabled {
		svc.hub = websocket.NewHub(websocket.Config{
			MaxConnections:  cfg.WebSocket.MaxConnections,
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
		}, log)
	}

	return svc, nil
}

func buildEngine(cfg *config.Config, svc *services, log *logger.Logger) (*engine.Engine, error) {
	encryptionKey, err := cfg.Crypto.EncryptionKey()
	if err != nil {
		return nil, err
	}
	pseudonymKey, err := cfg.Crypto.PseudonymKey()
	if err != nil {
		return nil, err
	}

	opts := engine.Options{
		EncryptionKey: encryptionKey,
		PseudonymKey:  pseudonymKey,
		SLADays:       cfg.DSR.SLADays,
		Retention:     cfg.Compliance.RetentionOverrides,
		MaxDepth:      cfg.Privacy.MaxRecordDepth,
	}

	if svc.detectionCache != nil {
		opts.Cache = svc.detectionCache
	}
	if svc.hub != nil {
		opts.Events = svc.hub
	}

	// Wire the DSR action collaborators when persistence is available.
	if svc.userData != nil {
		exporter, err := export.NewFileExporter(
			userDataSource{svc.userData},
			export.Config{Directory: cfg.Export.Directory, Format: cfg.Export.Format},
			log.WithComponent("export"),
		)
		if err != nil {
			return nil, fmt.Errorf("exporter: %w", err)
		}
		opts.Actions = dsr.Collaborators{
			Exporter:   exporter,
			Purger:     svc.userData,
			Rectifier:  svc.userData,
			Restrictor: svc.userData,
		}
		opts.ConsentStore = svc.store
	}

	detectCfg := pii.Config{
		Detectors:     cfg.Privacy.Detectors,
		MinConfidence: cfg.Privacy.MinConfidence,
	}

	return engine.New(detectCfg, opts, log.WithComponent("engine"))
}

// userDataSource adapts the stored inventory to the exporter's record
// shape.
type userDataSource struct {
	userData *store.UserData
}

func (u userDataSource) ExportRecords(ctx context.Context, userID string) ([]export.Record, error) {
	records, err := u.userData.Records(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]export.Record, len(records))
	for i, r := range records {
		out[i] = export.Record{
			UserID:     r.UserID,
			Category:   r.Category,
			StoredAt:   r.StoredAt,
			Restricted: r.Restricted,
			Payload:    string(r.Payload),
		}
	}
	return out, nil
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
