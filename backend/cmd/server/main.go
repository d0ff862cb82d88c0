package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"lms_backend/backend/internal/gateway"
	"lms_backend/backend/internal/mailer"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage"
	"lms_backend/backend/internal/storage/boltstore"
	"lms_backend/backend/internal/storage/mongostore"
	"lms_backend/backend/internal/telemetry"
)

const healthServiceName = "lms.Server"

func main() {
	// Load environment variables
	_ = shared.LoadEnv(".env")

	// 1. Load Configuration
	cfg, err := shared.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if err := shared.ValidateConfig(cfg); err != nil {
		log.Fatalf("FATAL: Invalid configuration: %v", err)
	}
	shared.PrintConfig(cfg)

	ctx := context.Background()

	// 2. Telemetry
	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Printf("WARN: Tracing disabled: %v", err)
	}
	reporter := telemetry.NewReporter(cfg.Telemetry.RollbarToken, cfg.Environment, "")
	defer reporter.Close()

	// 3. Open the document store
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to open %s store: %v", cfg.Storage.Driver, err)
	}

	// 4. Services, side-effect pipeline and router
	services := gateway.NewServices(gateway.Dependencies{
		Store:    store,
		Config:   cfg,
		Mailer:   mailer.New(cfg.Mail.SendGridAPIKey, cfg.Mail.FromName, cfg.Mail.FromAddress),
		Reporter: reporter,
	})
	router := gateway.SetupRoutes(services)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 5. gRPC health endpoint for orchestrators
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", ":"+cfg.HealthPort)
	if err != nil {
		log.Fatalf("FATAL: Failed to listen on port %s: %v", cfg.HealthPort, err)
	}

	// 6. Start Servers
	go func() {
		log.Printf("INFO: Health service listening on port %s", cfg.HealthPort)
		if err := grpcServer.Serve(listener); err != nil {
			log.Printf("ERROR: gRPC server error: %v", err)
		}
	}()

	go func() {
		log.Printf("INFO: LMS server listening on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: HTTP server error: %v", err)
		}
	}()

	// 7. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("INFO: Shutting down LMS server...")

	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: HTTP shutdown: %v", err)
	}
	services.Close()
	grpcServer.GracefulStop()

	if err := store.Close(shutdownCtx); err != nil {
		log.Printf("WARN: Error closing store: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("WARN: Tracing shutdown: %v", err)
	}
	log.Println("INFO: LMS server stopped.")
}

// openStore selects the document store from configuration
func openStore(ctx context.Context, cfg *shared.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "bolt":
		log.Printf("INFO: Using embedded store at %s", cfg.Storage.BoltPath)
		return boltstore.Open(cfg.Storage.BoltPath)
	default:
		return mongostore.Open(ctx, &cfg.MongoDB)
	}
}
