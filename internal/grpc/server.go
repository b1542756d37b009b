// Package server exposes the dashboard's sync health over gRPC.
package server

import (
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	middleware "github.com/tejusbharadwaj/gatewaydash/internal/grpc/middlewares"
	"github.com/tejusbharadwaj/gatewaydash/internal/metrics"
)

// SetupServer creates a gRPC server serving health with request id,
// logging and metrics interceptors.
func SetupServer(health *HealthChecker, logger *logrus.Logger, m *metrics.Metrics, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	opts = append(opts, grpc.ChainUnaryInterceptor(
		middleware.ContextMiddleware,             // Add request ID first
		middleware.NewLoggingInterceptor(logger), // Log all requests (with request ID)
		middleware.NewMetricsInterceptor(m),      // Collect metrics
	))

	srv := grpc.NewServer(opts...)
	grpc_health_v1.RegisterHealthServer(srv, health)
	return srv
}
