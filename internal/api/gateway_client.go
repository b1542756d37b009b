// Package api implements the HTTP client of the gateway REST service.
//
// The gateway exposes sensor metadata, paginated analysis records, the
// latest record per sensor and the audio recordings referenced by those
// records. Every failure (transport error, timeout or non-2xx status) is
// reported as ErrRemoteFetch; callers do not distinguish between them.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tejusbharadwaj/gatewaydash/internal/models"
)

const (
	defaultTimeout    = 10 * time.Second
	maxRecordingBytes = 64 << 20
)

var (
	ErrRemoteFetch          = errors.New("remote fetch failed")
	ErrRemoteStatus         = errors.New("unexpected status from gateway")
	ErrInvalidRecordingPath = errors.New("invalid recording path")
)

// Gateway is the set of remote operations the dashboard depends on.
type Gateway interface {
	ListSensors(ctx context.Context) ([]models.Sensor, error)
	UpsertSensor(ctx context.Context, sensor models.SensorUpsert) error
	ListAnalysis(ctx context.Context, page, pageSize int) (*models.AnalysisPage, error)
	LatestRecords(ctx context.Context) ([]models.LatestRecord, error)
	FetchRecording(ctx context.Context, recordingPath string) (*Recording, error)
}

// Recording is an audio asset downloaded from the gateway.
type Recording struct {
	ContentType string
	Data        []byte
}

// GatewayClient talks to the gateway over HTTP.
type GatewayClient struct {
	baseURL *url.URL
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// Option customises a GatewayClient.
type Option func(*GatewayClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *GatewayClient) { g.client = c }
}

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(g *GatewayClient) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimit bounds outbound requests per second. A non-positive rate
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *GatewayClient) {
		if perSecond <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewGatewayClient parses baseURL once and returns a client bound to it.
func NewGatewayClient(baseURL string, logger *logrus.Logger, opts ...Option) (*GatewayClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway url %q: scheme must be http or https", baseURL)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	g := &GatewayClient{
		baseURL: u,
		client:  http.DefaultClient,
		timeout: defaultTimeout,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ListSensors returns every registered sensor in server order.
func (g *GatewayClient) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	var sensors []models.Sensor
	if err := g.getJSON(ctx, "/sensors", nil, &sensors); err != nil {
		return nil, err
	}
	if sensors == nil {
		sensors = []models.Sensor{}
	}
	return sensors, nil
}

// UpsertSensor creates or updates a sensor. The response body is not used.
func (g *GatewayClient) UpsertSensor(ctx context.Context, sensor models.SensorUpsert) error {
	body, err := json.Marshal(sensor)
	if err != nil {
		return fmt.Errorf("failed to encode sensor: %v", err)
	}

	resp, err := g.do(ctx, http.MethodPost, g.endpoint("/sensors", nil), bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ListAnalysis returns one page of analysis records.
func (g *GatewayClient) ListAnalysis(ctx context.Context, page, pageSize int) (*models.AnalysisPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var p models.AnalysisPage
	if err := g.getJSON(ctx, "/data", q, &p); err != nil {
		return nil, err
	}
	if p.Records == nil {
		p.Records = []models.AnalysisRecord{}
	}
	return &p, nil
}

// LatestRecords returns the most recent analysis record of every sensor.
func (g *GatewayClient) LatestRecords(ctx context.Context) ([]models.LatestRecord, error) {
	var records []models.LatestRecord
	if err := g.getJSON(ctx, "/data/latest", nil, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.LatestRecord{}
	}
	return records, nil
}

// FetchRecording downloads the audio asset stored at recordingPath.
func (g *GatewayClient) FetchRecording(ctx context.Context, recordingPath string) (*Recording, error) {
	clean, err := CleanRecordingPath(recordingPath)
	if err != nil {
		return nil, err
	}

	resp, err := g.do(ctx, http.MethodGet, g.endpoint(clean, nil), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrRemoteFetch, clean, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/wav"
	}
	return &Recording{ContentType: contentType, Data: data}, nil
}

// CleanRecordingPath normalises a recording path relative to the gateway
// root. Empty paths and paths escaping the root are rejected.
func CleanRecordingPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRecordingPath)
	}
	p = strings.ReplaceAll(p, "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrInvalidRecordingPath, p)
		}
	}
	return "/" + strings.TrimLeft(p, "/"), nil
}

func (g *GatewayClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := g.endpoint(path, query)

	resp, err := g.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrRemoteFetch, path, err)
	}
	return nil
}

// do issues the request and returns the response only for 2xx statuses.
func (g *GatewayClient) do(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrRemoteFetch, method, endpoint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrRemoteFetch, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %s %s: %v", ErrRemoteFetch, method, endpoint, err)
	}

	g.logger.WithFields(logrus.Fields{
		"method":   method,
		"url":      endpoint,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("gateway request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %s %s: %w: got %d", ErrRemoteFetch, method, endpoint, ErrRemoteStatus, resp.StatusCode)
	}

	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (g *GatewayClient) endpoint(path string, query url.Values) string {
	u := *g.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// cancelBody releases the request context once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

var _ Gateway = (*GatewayClient)(nil)
