package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/dilsidhu13/secdrop/internal/config"
	"github.com/dilsidhu13/secdrop/internal/handlers"
	"github.com/dilsidhu13/secdrop/internal/logging"
	"github.com/dilsidhu13/secdrop/internal/notify"
	"github.com/dilsidhu13/secdrop/internal/storage"
	"github.com/dilsidhu13/secdrop/internal/tracing"
	"github.com/dilsidhu13/secdrop/internal/transfer"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Infow("starting service", "name", cfg.ServiceName, "port", cfg.ServicePort,
		"encryption_mode", cfg.EncryptionMode, "storage", cfg.StorageBackend,
		"registry", cfg.RegistryBackend)

	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint, log)
	if err != nil {
		log.Fatalw("failed to initialize tracer", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Errorw("error shutting down tracer", "error", err)
		}
	}()

	blobs, err := buildBlobStore(cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize blob store", "error", err)
	}

	registry, closeRegistry, err := buildRegistry(cfg)
	if err != nil {
		log.Fatalw("failed to initialize transfer registry", "error", err)
	}
	defer closeRegistry()

	var cache *storage.RedisCache
	if cfg.RedisEnabled {
		cache, err = storage.NewRedisCache(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalw("failed to initialize redis cache", "error", err)
		}
		defer cache.Close()
		log.Infow("redis cache enabled", "addr", cfg.GetRedisAddr())
	}

	protocol := transfer.New(registry, blobs, cache, notify.NewLogNotifier(log), transfer.Options{
		Mode:      cfg.EncryptionMode,
		SaltMode:  cfg.SaltMode,
		ChunkSize: cfg.GetChunkSizeBytes(),
		OTPLength: cfg.OTPLength,
	}, log)

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	route := func(path, name string, h http.Handler, methods ...string) {
		router.Handle(path, otelhttp.NewHandler(h, name)).Methods(methods...)
	}

	route("/api/upload/init", "POST /api/upload/init",
		handlers.NewInitUploadHandler(protocol, log), "POST")
	route("/api/upload/{transfer_id}/chunk/{index}", "PUT /api/upload/{transfer_id}/chunk/{index}",
		handlers.NewChunkUploadHandler(protocol, log), "PUT")
	route("/api/upload", "POST /api/upload",
		handlers.NewWholeUploadHandler(protocol, log), "POST")
	route("/api/download/{transfer_id}", "GET /api/download/{transfer_id}",
		handlers.NewDownloadHandler(protocol, log), "GET")
	route("/api/metadata/{id}", "GET /api/metadata/{id}",
		handlers.NewMetadataHandler(protocol, log), "GET")
	route("/api/crypto/request-otp/{id}", "POST /api/crypto/request-otp/{id}",
		handlers.NewRequestOTPHandler(protocol, log), "POST")
	route("/api/crypto/decrypt/{id}", "POST /api/crypto/decrypt/{id}",
		handlers.NewDecryptHandler(protocol, log), "POST")
	route("/api/admin/login", "POST /api/admin/login",
		handlers.NewAdminLoginHandler(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret, log), "POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server listening", "port", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}

func buildBlobStore(cfg *config.Config, log *zap.SugaredLogger) (storage.BlobStore, error) {
	switch cfg.StorageBackend {
	case "minio":
		return storage.NewMinioStore(
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
			log,
		)
	case "disk":
		return storage.NewDiskStore(cfg.FileStorageDir)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func buildRegistry(cfg *config.Config) (storage.Registry, func(), error) {
	switch cfg.RegistryBackend {
	case "mysql":
		reg, err := storage.NewMySQLRegistry(cfg.GetDSN())
		if err != nil {
			return nil, nil, err
		}
		return reg, func() { reg.Close() }, nil
	case "memory":
		return storage.NewMemoryRegistry(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry backend %q", cfg.RegistryBackend)
	}
}
