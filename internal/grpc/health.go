package server

import (
	"context"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthChecker implements the gRPC health checking protocol.
//
// Every dashboard view is a service: it is SERVING while its last gateway
// fetch succeeded and NOT_SERVING after a failure. The empty service name
// reports the process itself.
type HealthChecker struct {
	grpc_health_v1.UnimplementedHealthServer
	mu       sync.RWMutex
	status   map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
	shutdown bool
}

func NewHealthChecker(services ...string) *HealthChecker {
	h := &HealthChecker{
		status: make(map[string]grpc_health_v1.HealthCheckResponse_ServingStatus),
	}
	h.status[""] = grpc_health_v1.HealthCheckResponse_SERVING
	for _, s := range services {
		h.status[s] = grpc_health_v1.HealthCheckResponse_UNKNOWN
	}
	return h
}

func (h *HealthChecker) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if status, ok := h.status[req.Service]; ok {
		return &grpc_health_v1.HealthCheckResponse{
			Status: status,
		}, nil
	}

	return nil, status.Error(codes.NotFound, "unknown service")
}

func (h *HealthChecker) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watching is not supported")
}

// SetServingStatus sets the serving status of a service
func (h *HealthChecker) SetServingStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[service] = status
}

// Observe records the outcome of a view fetch. Its signature matches
// dashboard.SyncObserver. Observations after Shutdown are ignored.
func (h *HealthChecker) Observe(view string, err error) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if err != nil {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return
	}
	h.status[view] = st
}

// Shutdown marks every service NOT_SERVING for good.
func (h *HealthChecker) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdown = true
	for s := range h.status {
		h.status[s] = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
}
