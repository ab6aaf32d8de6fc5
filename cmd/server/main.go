package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gridpix/gridpix/internal/config"
	"github.com/gridpix/gridpix/internal/files"
	"github.com/gridpix/gridpix/internal/handlers"
	"github.com/gridpix/gridpix/internal/reconcile"
	"github.com/gridpix/gridpix/internal/storage"
	"github.com/gridpix/gridpix/internal/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	log.Println("Starting GridPix service...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Service: %s, Port: %s, Backend: %s", cfg.ServiceName, cfg.ServicePort, cfg.StorageBackend)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	// Initialize storage backend
	var chunks storage.ChunkStore
	var registry storage.MetadataRegistry
	var cache *storage.RecordCache

	switch cfg.StorageBackend {
	case "minio":
		log.Println("Connecting to MinIO...")
		minioStore, err := storage.NewMinioChunkStore(
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
		)
		if err != nil {
			log.Fatalf("Failed to initialize MinIO chunk store: %v", err)
		}
		chunks = minioStore
		log.Println("MinIO chunk store initialized")

		log.Println("Connecting to MySQL...")
		mysqlRegistry, err := storage.NewMySQLRegistry(cfg.GetDSN())
		if err != nil {
			log.Fatalf("Failed to initialize MySQL registry: %v", err)
		}
		defer mysqlRegistry.Close()
		registry = mysqlRegistry
		log.Println("MySQL registry initialized")

		log.Println("Connecting to Redis...")
		cache, err = storage.NewRecordCache(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to initialize Redis cache: %v", err)
		}
		defer cache.Close()
		log.Println("Redis cache initialized")

	case "bolt":
		log.Printf("Opening embedded store at %s...", cfg.BoltPath)
		boltStore, err := storage.NewBoltStore(cfg.BoltPath)
		if err != nil {
			log.Fatalf("Failed to open embedded store: %v", err)
		}
		defer boltStore.Close()
		chunks = boltStore
		registry = boltStore
		log.Println("Embedded store initialized")
	}

	// Initialize delete reconciliation when a broker is configured
	var scheduler files.Scheduler
	var mqClient *reconcile.Client
	if cfg.AMQPURL != "" {
		log.Println("Connecting to RabbitMQ...")
		mqClient, err = reconcile.Dial(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer mqClient.Close()
		scheduler = mqClient
		log.Println("RabbitMQ reconciliation queue initialized")
	}

	store := files.NewStore(chunks, registry, cache, scheduler, cfg.GetChunkSizeBytes())

	// Run the reconciliation worker alongside the server
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if mqClient != nil {
		worker := reconcile.NewWorker(mqClient, store)
		go func() {
			if err := worker.Run(workerCtx); err != nil && err != context.Canceled {
				log.Printf("Reconciliation worker stopped: %v", err)
			}
		}()
	}

	// Setup HTTP router
	router := mux.NewRouter()

	// Health check endpoint (no tracing needed)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// File operations with tracing
	router.Handle("/upload", otelhttp.NewHandler(handlers.NewUploadHandler(store), "POST /upload")).Methods("POST")
	router.Handle("/api/files", otelhttp.NewHandler(handlers.NewListHandler(store), "GET /api/files")).Methods("GET")
	router.Handle("/api/search", otelhttp.NewHandler(handlers.NewSearchHandler(store), "GET /api/search")).Methods("GET")
	router.Handle("/api/files/{filename}", otelhttp.NewHandler(handlers.NewInfoHandler(store), "GET /api/files/{filename}")).Methods("GET")
	router.Handle("/image/{filename}", otelhttp.NewHandler(handlers.NewImageHandler(store), "GET /image/{filename}")).Methods("GET")
	router.Handle("/files/{file_id}", otelhttp.NewHandler(handlers.NewDeleteHandler(store), "DELETE /files/{file_id}")).Methods("DELETE")

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on port %s", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopWorker()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
