package dashboard

import (
	"context"
	"errors"
	"sync"

	"github.com/tejusbharadwaj/gatewaydash/internal/api"
	"github.com/tejusbharadwaj/gatewaydash/internal/models"
)

var errGatewayDown = errors.New("gateway down")

// fakeGateway is an in-memory api.Gateway whose responses can be swapped
// per test. Every call is counted.
type fakeGateway struct {
	mu sync.Mutex

	sensors    func() ([]models.Sensor, error)
	latest     func() ([]models.LatestRecord, error)
	analysis   func(ctx context.Context, page int) (*models.AnalysisPage, error)
	upsert     func(ctx context.Context, s models.SensorUpsert) error
	recordings int

	sensorCalls   int
	latestCalls   int
	analysisPages []int
	upserts       []models.SensorUpsert
}

func (f *fakeGateway) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	f.mu.Lock()
	f.sensorCalls++
	fn := f.sensors
	f.mu.Unlock()
	if fn == nil {
		return []models.Sensor{}, nil
	}
	return fn()
}

func (f *fakeGateway) UpsertSensor(ctx context.Context, s models.SensorUpsert) error {
	f.mu.Lock()
	f.upserts = append(f.upserts, s)
	fn := f.upsert
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, s)
}

func (f *fakeGateway) ListAnalysis(ctx context.Context, page, pageSize int) (*models.AnalysisPage, error) {
	f.mu.Lock()
	f.analysisPages = append(f.analysisPages, page)
	fn := f.analysis
	f.mu.Unlock()
	if fn == nil {
		return &models.AnalysisPage{Page: page, PageSize: pageSize, Records: []models.AnalysisRecord{}}, nil
	}
	return fn(ctx, page)
}

func (f *fakeGateway) LatestRecords(ctx context.Context) ([]models.LatestRecord, error) {
	f.mu.Lock()
	f.latestCalls++
	fn := f.latest
	f.mu.Unlock()
	if fn == nil {
		return []models.LatestRecord{}, nil
	}
	return fn()
}

func (f *fakeGateway) FetchRecording(ctx context.Context, recordingPath string) (*api.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordings++
	return &api.Recording{ContentType: "audio/wav", Data: []byte("RIFF")}, nil
}

func (f *fakeGateway) counts() (sensors, latest int, pages []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sensorCalls, f.latestCalls, append([]int(nil), f.analysisPages...)
}

// pageOf builds a page of n records for the given page number.
func pageOf(page, n, total int) *models.AnalysisPage {
	records := make([]models.AnalysisRecord, n)
	for i := range records {
		records[i] = models.AnalysisRecord{SensorID: page*100 + i, Coeff: 0.5, Lag: 0.1}
	}
	return &models.AnalysisPage{TotalCount: total, Page: page, PageSize: PageSize, Records: records}
}

var _ api.Gateway = (*fakeGateway)(nil)
