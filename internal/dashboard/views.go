package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/gatewaydash/internal/api"
	"github.com/tejusbharadwaj/gatewaydash/internal/metrics"
	"github.com/tejusbharadwaj/gatewaydash/internal/models"
)

// View names used in logs, metrics and health reporting.
const (
	ViewSensors  = "sensors"
	ViewLatest   = "latest"
	ViewAnalysis = "analysis"
	ViewForm     = "form"
)

// Messages surfaced to the operator.
const (
	MsgSensorsFailed  = "Failed to fetch sensors"
	MsgLatestFailed   = "Failed to fetch latest records"
	MsgAnalysisFailed = "Failed to fetch analysis data"
	MsgSubmitFailed   = "Failed to create sensor"
	MsgSubmitSuccess  = "Sensor created/updated successfully"
	MsgDraftInvalid   = "Please fill in every required field"
)

// RecordingPlaceholder is rendered instead of a player when a record has
// no recording.
const RecordingPlaceholder = "—"

// SyncObserver is told about the outcome of every view fetch.
type SyncObserver func(view string, err error)

// Archiver persists observed latest records.
type Archiver interface {
	SaveLatest(ctx context.Context, records []models.LatestRecord) error
}

type hooks struct {
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	observer SyncObserver
}

func (h hooks) synced(view string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
		h.logger.WithFields(logrus.Fields{
			"view":  view,
			"error": err,
		}).Error("Gateway fetch failed")
	} else {
		h.logger.WithField("view", view).Debug("Gateway fetch succeeded")
	}
	h.metrics.ObserveFetch(view, outcome, time.Since(start))
	if h.observer != nil {
		h.observer(view, err)
	}
}

// listState holds a polled list with last-known-good semantics.
type listState[T any] struct {
	mu        sync.RWMutex
	items     []T
	err       string
	updatedAt time.Time
}

func (s *listState[T]) succeed(items []T, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.err = ""
	s.updatedAt = at
}

// fail keeps the previous items.
func (s *listState[T]) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = msg
}

func (s *listState[T]) read() ([]T, string, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]T, len(s.items))
	copy(items, s.items)
	return items, s.err, s.updatedAt
}

// SensorLister is the part of the gateway used by the registry.
type SensorLister interface {
	ListSensors(ctx context.Context) ([]models.Sensor, error)
}

// SensorRegistry mirrors the gateway's sensor list.
type SensorRegistry struct {
	gateway SensorLister
	hooks   hooks
	state   listState[models.Sensor]
}

// SensorsView is an immutable copy of the registry.
type SensorsView struct {
	Sensors   []models.Sensor `json:"sensors"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func newSensorRegistry(gw SensorLister, h hooks) *SensorRegistry {
	return &SensorRegistry{gateway: gw, hooks: h}
}

// Refresh replaces the list on success. On failure the previous list is
// kept and an error message is recorded until the next success.
func (r *SensorRegistry) Refresh(ctx context.Context) error {
	start := time.Now()
	sensors, err := r.gateway.ListSensors(ctx)
	r.hooks.synced(ViewSensors, start, err)
	if err != nil {
		r.state.fail(MsgSensorsFailed)
		return err
	}
	r.state.succeed(sensors, time.Now())
	return nil
}

// Snapshot returns a copy of the registry.
func (r *SensorRegistry) Snapshot() SensorsView {
	sensors, msg, at := r.state.read()
	return SensorsView{Sensors: sensors, Error: msg, UpdatedAt: at}
}

// LatestLister is the part of the gateway used by the latest panel.
type LatestLister interface {
	LatestRecords(ctx context.Context) ([]models.LatestRecord, error)
}

// LatestPanel mirrors the most recent record of every sensor.
type LatestPanel struct {
	gateway         LatestLister
	archive         Archiver
	recordingPrefix string
	hooks           hooks
	state           listState[models.LatestRecord]
}

// RecordRow is a record ready for display.
type RecordRow struct {
	models.AnalysisRecord
	// RecordingURL is empty when the record has no usable recording.
	RecordingURL string `json:"recordingUrl,omitempty"`
}

// LatestView is an immutable copy of the latest panel.
type LatestView struct {
	Records   []RecordRow `json:"records"`
	Error     string      `json:"error,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func newLatestPanel(gw LatestLister, archive Archiver, prefix string, h hooks) *LatestPanel {
	return &LatestPanel{gateway: gw, archive: archive, recordingPrefix: prefix, hooks: h}
}

// Refresh follows the same last-known-good policy as SensorRegistry.Refresh.
func (p *LatestPanel) Refresh(ctx context.Context) error {
	start := time.Now()
	records, err := p.gateway.LatestRecords(ctx)
	p.hooks.synced(ViewLatest, start, err)
	if err != nil {
		p.state.fail(MsgLatestFailed)
		return err
	}
	p.state.succeed(records, time.Now())

	if p.archive != nil && len(records) > 0 {
		if err := p.archive.SaveLatest(ctx, records); err != nil {
			p.hooks.logger.WithFields(logrus.Fields{
				"view":    ViewLatest,
				"records": len(records),
				"error":   err,
			}).Warn("Failed to archive latest records")
		}
	}
	return nil
}

// Snapshot returns a copy of the panel with recording links resolved.
func (p *LatestPanel) Snapshot() LatestView {
	records, msg, at := p.state.read()
	return LatestView{Records: rows(records, p.recordingPrefix), Error: msg, UpdatedAt: at}
}

func rows(records []models.AnalysisRecord, prefix string) []RecordRow {
	out := make([]RecordRow, len(records))
	for i, rec := range records {
		out[i] = RecordRow{AnalysisRecord: rec, RecordingURL: recordingLink(prefix, rec.RecordingPath)}
	}
	return out
}

func recordingLink(prefix, recordingPath string) string {
	if recordingPath == "" {
		return ""
	}
	clean, err := api.CleanRecordingPath(recordingPath)
	if err != nil {
		return ""
	}
	return prefix + clean
}
