// Package dashboard implements the view-model synchronizer of the gateway
// dashboard.
//
// A Dashboard owns four independent views of remote state:
//   - SensorRegistry: the sensor list, polled every 10 seconds
//   - LatestPanel: the latest record per sensor, polled every 2 seconds
//   - AnalysisBrowser: paginated analysis records, loaded on page change
//   - SubmissionForm: the sensor draft, posted on submit
//
// Polled views keep their last good data when a fetch fails and clear the
// error on the next success. The analysis browser instead drops its rows
// on failure. Views never share state; the only coupling is the registry
// refresh triggered by a successful submission.
//
// Example usage:
//
//	d, err := dashboard.New(client, dashboard.DefaultConfig(), logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := d.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Stop()
package dashboard

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/tejusbharadwaj/gatewaydash/internal/api"
	"github.com/tejusbharadwaj/gatewaydash/internal/metrics"
	"github.com/tejusbharadwaj/gatewaydash/internal/scheduler"
)

var ErrAlreadyStarted = errors.New("dashboard already started")

// Config holds the cadence of the polled views.
type Config struct {
	SensorsInterval string
	LatestInterval  string
	// RecordingPrefix is prepended to recording paths to build audio URLs.
	RecordingPrefix string
}

// DefaultConfig polls sensors every 10s and latest records every 2s.
func DefaultConfig() Config {
	return Config{
		SensorsInterval: "@every 10s",
		LatestInterval:  "@every 2s",
		RecordingPrefix: "/recordings",
	}
}

// Option customises a Dashboard.
type Option func(*options)

type options struct {
	archive  Archiver
	metrics  *metrics.Metrics
	observer SyncObserver
	clock    scheduler.Clock
}

// WithArchive stores every successful latest-record poll.
func WithArchive(a Archiver) Option {
	return func(o *options) { o.archive = a }
}

// WithMetrics records every gateway fetch on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithObserver registers a callback for every fetch outcome.
func WithObserver(fn SyncObserver) Option {
	return func(o *options) { o.observer = fn }
}

// WithClock drives the pollers from c instead of the wall clock.
func WithClock(c scheduler.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Dashboard composes the four views and owns their background work.
type Dashboard struct {
	Sensors  *SensorRegistry
	Latest   *LatestPanel
	Analysis *AnalysisBrowser
	Form     *SubmissionForm

	logger    *logrus.Logger
	scheduler *scheduler.Scheduler

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      *conc.WaitGroup
	running bool
}

// Snapshot is a consistent-per-view copy of the whole dashboard.
type Snapshot struct {
	Sensors  SensorsView  `json:"sensors"`
	Latest   LatestView   `json:"latest"`
	Analysis AnalysisView `json:"analysis"`
	Form     FormView     `json:"form"`
}

// New builds the views and their pollers. Nothing runs until Start.
func New(gw api.Gateway, cfg Config, logger *logrus.Logger, opts ...Option) (*Dashboard, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	o := options{clock: scheduler.RealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	h := hooks{logger: logger, metrics: o.metrics, observer: o.observer}

	d := &Dashboard{logger: logger}
	d.Sensors = newSensorRegistry(gw, h)
	d.Latest = newLatestPanel(gw, o.archive, cfg.RecordingPrefix, h)
	d.Analysis = newAnalysisBrowser(gw, cfg.RecordingPrefix, h)
	d.Form = newSubmissionForm(gw, func(ctx context.Context) {
		_ = d.Sensors.Refresh(ctx)
	}, h)

	sensorsPoller, err := scheduler.NewPoller(ViewSensors, cfg.SensorsInterval, func(ctx context.Context) {
		_ = d.Sensors.Refresh(ctx)
	}, logger, scheduler.WithClock(o.clock))
	if err != nil {
		return nil, err
	}
	latestPoller, err := scheduler.NewPoller(ViewLatest, cfg.LatestInterval, func(ctx context.Context) {
		_ = d.Latest.Refresh(ctx)
	}, logger, scheduler.WithClock(o.clock))
	if err != nil {
		return nil, err
	}
	d.scheduler = scheduler.NewScheduler(logger, sensorsPoller, latestPoller)

	return d, nil
}

// Start mounts the dashboard: both pollers fetch immediately and the first
// analysis page is loaded. Everything started here is bound to ctx and
// stopped by Stop.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(ctx); err != nil {
		cancel()
		return err
	}

	wg := conc.NewWaitGroup()
	wg.Go(func() { d.Analysis.Load(ctx) })

	d.cancel = cancel
	d.wg = wg
	d.running = true
	d.logger.Info("Dashboard started")
	return nil
}

// Stop cancels every poller and in-flight mount fetch and waits for them.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel, wg := d.cancel, d.wg
	d.running = false
	d.mu.Unlock()

	cancel()
	d.scheduler.Stop()
	wg.Wait()
	d.logger.Info("Dashboard stopped")
}

// Snapshot copies every view.
func (d *Dashboard) Snapshot() Snapshot {
	return Snapshot{
		Sensors:  d.Sensors.Snapshot(),
		Latest:   d.Latest.Snapshot(),
		Analysis: d.Analysis.Snapshot(),
		Form:     d.Form.Snapshot(),
	}
}
