package middleware

// Recordings are immutable on the gateway, so successful responses are kept
// in an in-memory LRU keyed by request path.

import (
	"bytes"
	"net/http"

	lru "github.com/hashicorp/golang-lru"

	"github.com/tejusbharadwaj/gatewaydash/internal/metrics"
)

type cachedResponse struct {
	contentType string
	body        []byte
}

// ResponseCache caches 200 responses of GET requests.
type ResponseCache struct {
	cache   *lru.Cache
	metrics *metrics.Metrics
}

// NewResponseCache creates a cache holding at most size responses.
func NewResponseCache(size int, m *metrics.Metrics) (*ResponseCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{cache: c, metrics: m}, nil
}

func (c *ResponseCache) Len() int {
	return c.cache.Len()
}

// Middleware serves cached responses and stores new successful ones.
func (c *ResponseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.Path
		if v, ok := c.cache.Get(key); ok {
			c.metrics.ObserveCache(true)
			resp := v.(cachedResponse)
			w.Header().Set("Content-Type", resp.contentType)
			w.Header().Set("X-Cache", "HIT")
			_, _ = w.Write(resp.body)
			return
		}
		c.metrics.ObserveCache(false)

		w.Header().Set("X-Cache", "MISS")
		rec := &bufferingWriter{statusRecorder: newStatusRecorder(w)}
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusOK {
			c.cache.Add(key, cachedResponse{
				contentType: w.Header().Get("Content-Type"),
				body:        rec.buf.Bytes(),
			})
		}
	})
}

// bufferingWriter copies the body while writing it through.
type bufferingWriter struct {
	*statusRecorder
	buf bytes.Buffer
}

func (b *bufferingWriter) Write(p []byte) (int, error) {
	b.buf.Write(p)
	return b.statusRecorder.Write(p)
}
