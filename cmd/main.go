package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/tejusbharadwaj/gatewaydash/internal/api"
	"github.com/tejusbharadwaj/gatewaydash/internal/config"
	"github.com/tejusbharadwaj/gatewaydash/internal/dashboard"
	"github.com/tejusbharadwaj/gatewaydash/internal/database"
	server "github.com/tejusbharadwaj/gatewaydash/internal/grpc"
	"github.com/tejusbharadwaj/gatewaydash/internal/metrics"
	"github.com/tejusbharadwaj/gatewaydash/internal/web"
)

// Command gatewaydash keeps an operator dashboard in sync with a sensor
// gateway.
//
// The service:
//   - polls the sensor registry every 10 seconds
//   - polls the latest record per sensor every 2 seconds
//   - pages through analysis records on demand
//   - submits sensor create/update requests
//   - optionally archives latest records in PostgreSQL/TimescaleDB
//
// Usage:
//
//	gatewaydash [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
//	-print-config
//	      print the effective configuration and exit
func main() {
	// Parse command line flags
	flags := parseFlags()

	// Load configuration
	appConfig, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if flags.PrintConfig {
		out, err := appConfig.Dump()
		if err != nil {
			log.Fatalf("Failed to render configuration: %v", err)
		}
		fmt.Print(string(out))
		return
	}

	// Initialize structured logger
	logger := newLogger(appConfig.Logging)

	logger.WithFields(logrus.Fields{
		"gateway": appConfig.Gateway.URL,
		"port":    appConfig.Server.Port,
	}).Info("Starting dashboard")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		logger.Fatalf("Failed to register metrics: %v", err)
	}

	client, err := api.NewGatewayClient(appConfig.Gateway.URL, logger,
		api.WithTimeout(appConfig.Gateway.Timeout),
		api.WithRateLimit(appConfig.Gateway.RateLimit, appConfig.Gateway.RateLimitBurst),
	)
	if err != nil {
		logger.Fatalf("Failed to create gateway client: %v", err)
	}

	// Create a context that will be canceled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := server.NewHealthChecker(dashboard.ViewSensors, dashboard.ViewLatest, dashboard.ViewAnalysis, dashboard.ViewForm)

	opts := []dashboard.Option{
		dashboard.WithMetrics(m),
		dashboard.WithObserver(health.Observe),
	}

	var repo database.SnapshotRepository
	if appConfig.Database.Enabled {
		pg, err := createPostgresRepository(ctx, appConfig.Database)
		if err != nil {
			logger.Fatalf("Failed to create repository: %v", err)
		}
		repo = pg
		opts = append(opts, dashboard.WithArchive(pg))
	}

	dashCfg := dashboard.DefaultConfig()
	dashCfg.SensorsInterval = appConfig.Polling.Sensors
	dashCfg.LatestInterval = appConfig.Polling.Latest

	dash, err := dashboard.New(client, dashCfg, logger, opts...)
	if err != nil {
		logger.Fatalf("Failed to create dashboard: %v", err)
	}

	webSrv, err := web.NewServer(dash, client, web.Config{
		RateLimit:      appConfig.Server.RateLimit,
		RateLimitBurst: appConfig.Server.RateLimitBurst,
		CacheSize:      appConfig.Cache.RecordingsSize,
	}, logger, m, reg)
	if err != nil {
		logger.Fatalf("Failed to setup HTTP server: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.Port),
		Handler:           webSrv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start background services
	errChan := make(chan error, 2)

	if err := dash.Start(ctx); err != nil {
		logger.Fatalf("Failed to start dashboard: %v", err)
	}

	var grpcSrv *grpc.Server
	if appConfig.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.GRPCPort))
		if err != nil {
			logger.Fatalf("Failed to listen: %v", err)
		}
		grpcSrv = server.SetupServer(health, logger, m)

		logger.WithFields(logrus.Fields{
			"port": appConfig.Server.GRPCPort,
		}).Info("Starting gRPC health server")

		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				errChan <- fmt.Errorf("grpc server error: %w", err)
			}
		}()
	}

	logger.WithFields(logrus.Fields{
		"addr": httpSrv.Addr,
	}).Info("Starting HTTP server")

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// Block until a signal or a server failure, then tear everything down
	select {
	case err := <-errChan:
		logger.Errorf("Service error: %v", err)
	case <-waitForSignal(ctx, logger):
	}

	shutdown(httpSrv, grpcSrv, dash, health, repo, logger)
}

type Flags struct {
	ConfigPath  string
	PrintConfig bool
}

func parseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "config.yaml", "Path to config file")
	flag.BoolVar(&f.PrintConfig, "print-config", false, "Print the effective configuration and exit")

	flag.Parse()

	return f
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	// Level is validated by config.Load
	level, _ := logrus.ParseLevel(cfg.Level)
	logger.SetLevel(level)
	return logger
}

func waitForSignal(ctx context.Context, logger *logrus.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case <-ctx.Done():
			logger.Println("Context canceled, initiating shutdown")
		case sig := <-sigChan:
			logger.Printf("Received signal %v, initiating shutdown", sig)
		}
		close(done)
	}()
	return done
}

// Handle graceful shutdown
func shutdown(httpSrv *http.Server, grpcSrv *grpc.Server, dash *dashboard.Dashboard, health *server.HealthChecker, repo database.SnapshotRepository, logger *logrus.Logger) {
	logger.Println("Gracefully stopping servers...")
	health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("HTTP server did not stop cleanly")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}

	// Pollers must stop before the archive closes
	dash.Stop()

	if repo != nil {
		if err := repo.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close repository")
		}
	}
	logger.Println("Server stopped")
}

// Create a Postgres repository and make sure its schema exists
func createPostgresRepository(ctx context.Context, cfg config.DatabaseConfig) (*database.PostgresRepo, error) {
	repo, err := database.NewPostgresRepo(cfg.DSN())
	if err != nil {
		return nil, err
	}
	repo.SetMaxConnections(cfg.MaxConnections)

	if err := repo.EnsureSchema(ctx, cfg.Timescale); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}
