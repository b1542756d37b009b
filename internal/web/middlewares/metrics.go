package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tejusbharadwaj/gatewaydash/internal/metrics"
)

// Metrics records request counts and latency labelled by route template,
// so /recordings/{path} does not create one series per file.
func Metrics(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			m.ObserveRequest(routeName(r), rec.status, time.Since(start))
		})
	}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
