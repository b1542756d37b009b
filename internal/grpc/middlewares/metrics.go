package middleware

import (
	"context"
	"path"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tejusbharadwaj/gatewaydash/internal/metrics"
)

// NewMetricsInterceptor records request counts and latency per method. A
// nil m records nothing.
func NewMetricsInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		m.ObserveRequest("grpc:"+path.Base(info.FullMethod), httpEquivalent(status.Code(err)), time.Since(start))

		return resp, err
	}
}

// httpEquivalent maps a gRPC code onto the status classes used by the
// request metrics.
func httpEquivalent(c codes.Code) int {
	switch c {
	case codes.OK:
		return 200
	case codes.NotFound:
		return 404
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return 400
	case codes.ResourceExhausted:
		return 429
	case codes.Unimplemented:
		return 501
	default:
		return 500
	}
}
