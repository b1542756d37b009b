package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/gatewaydash/internal/api"
	"github.com/tejusbharadwaj/gatewaydash/internal/models"
)

// gatewayServer is an HTTP fake of the gateway counting GET /sensors.
type gatewayServer struct {
	sensorGets int32
	postStatus int32

	mu      sync.Mutex
	sensors []models.Sensor
}

func (g *gatewayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/sensors" && r.Method == http.MethodGet:
		atomic.AddInt32(&g.sensorGets, 1)
		g.mu.Lock()
		defer g.mu.Unlock()
		json.NewEncoder(w).Encode(g.sensors)
	case r.URL.Path == "/sensors" && r.Method == http.MethodPost:
		if code := atomic.LoadInt32(&g.postStatus); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		var s models.SensorUpsert
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		g.sensors = append(g.sensors, models.Sensor{SensorID: s.SensorID, Name: s.Name, Location: s.Location, Status: s.Status})
		g.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message":"ok"}`))
	default:
		http.NotFound(w, r)
	}
}

func newFormDashboard(t *testing.T, gs *gatewayServer) *Dashboard {
	t.Helper()
	srv := httptest.NewServer(gs)
	t.Cleanup(srv.Close)

	client, err := api.NewGatewayClient(srv.URL, logrus.New())
	require.NoError(t, err)

	d, err := New(client, DefaultConfig(), logrus.New())
	require.NoError(t, err)
	return d
}

var validDraft = models.SubmissionDraft{SensorID: 1, Name: "A", Lat: 10, Lon: 20, Status: models.StatusOnline}

func TestSubmitSuccessResetsDraftAndRefreshesRegistry(t *testing.T) {
	gs := &gatewayServer{}
	d := newFormDashboard(t, gs)

	require.NoError(t, d.Form.SubmitDraft(context.Background(), validDraft))

	v := d.Form.Snapshot()
	assert.Equal(t, models.DefaultDraft(), v.Draft)
	assert.Equal(t, MsgSubmitSuccess, v.Success)
	assert.Empty(t, v.Error)
	assert.False(t, v.Submitting)

	assert.EqualValues(t, 1, atomic.LoadInt32(&gs.sensorGets), "exactly one extra GET /sensors")
	sensors := d.Sensors.Snapshot().Sensors
	require.Len(t, sensors, 1)
	assert.Equal(t, "A", sensors[0].Name)
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	gs := &gatewayServer{postStatus: http.StatusInternalServerError}
	d := newFormDashboard(t, gs)

	err := d.Form.SubmitDraft(context.Background(), validDraft)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrRemoteFetch))

	v := d.Form.Snapshot()
	assert.Equal(t, validDraft, v.Draft)
	assert.Equal(t, MsgSubmitFailed, v.Error)
	assert.Empty(t, v.Success)
	assert.False(t, v.Submitting)
	assert.EqualValues(t, 0, atomic.LoadInt32(&gs.sensorGets), "no registry refresh after a failure")
}

func TestSubmitRejectsDuplicateWhileInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{upsert: func(ctx context.Context, s models.SensorUpsert) error {
		close(entered)
		<-release
		return nil
	}}
	f := newSubmissionForm(gw, nil, testHooks())

	done := make(chan error, 1)
	go func() { done <- f.SubmitDraft(context.Background(), validDraft) }()
	<-entered

	assert.True(t, f.Snapshot().Submitting)
	assert.ErrorIs(t, f.Submit(context.Background()), ErrSubmissionInFlight)
	assert.ErrorIs(t, f.SubmitDraft(context.Background(), models.SubmissionDraft{SensorID: 9}), ErrSubmissionInFlight)
	assert.Equal(t, validDraft, f.Draft(), "a rejected duplicate does not overwrite the draft")

	close(release)
	require.NoError(t, <-done)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Len(t, gw.upserts, 1)
}

func TestSubmitClearsMessagesOnNextAttempt(t *testing.T) {
	var calls int32
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{upsert: func(ctx context.Context, s models.SensorUpsert) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errGatewayDown
		}
		close(entered)
		<-release
		return nil
	}}
	f := newSubmissionForm(gw, nil, testHooks())

	require.Error(t, f.SubmitDraft(context.Background(), validDraft))
	require.Equal(t, MsgSubmitFailed, f.Snapshot().Error)

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()
	<-entered

	v := f.Snapshot()
	assert.Empty(t, v.Error)
	assert.Empty(t, v.Success)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, MsgSubmitSuccess, f.Snapshot().Success)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Len(t, gw.upserts, 2)
	assert.Equal(t, gw.upserts[0], gw.upserts[1], "the retry resubmits the kept draft")
}

func TestSubmitPayloadShape(t *testing.T) {
	gw := &fakeGateway{}
	f := newSubmissionForm(gw, nil, testHooks())
	require.NoError(t, f.SubmitDraft(context.Background(), validDraft))

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Len(t, gw.upserts, 1)
	body, err := json.Marshal(gw.upserts[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"sensor_id":1,"name":"A","location":{"lat":10,"lon":20},"status":"online"}`, string(body))
}

func TestRejectRecordsErrorWithoutRequest(t *testing.T) {
	gw := &fakeGateway{}
	f := newSubmissionForm(gw, nil, testHooks())

	values := url.Values{"sensor_id": {"3"}, "lat": {"1"}, "lon": {"2"}}
	d, err := ParseDraft(values)
	require.ErrorIs(t, err, ErrInvalidDraft)
	require.NoError(t, f.Reject(d, values, err))

	v := f.Snapshot()
	assert.Equal(t, MsgDraftInvalid, v.Error)
	assert.Equal(t, 3, v.Draft.SensorID)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Empty(t, gw.upserts)
}

func TestRejectRefusedWhileInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{upsert: func(ctx context.Context, s models.SensorUpsert) error {
		close(entered)
		<-release
		return nil
	}}
	f := newSubmissionForm(gw, nil, testHooks())

	done := make(chan error, 1)
	go func() { done <- f.SubmitDraft(context.Background(), validDraft) }()
	<-entered

	bad := url.Values{"name": {"B"}}
	d, perr := ParseDraft(bad)
	assert.ErrorIs(t, f.Reject(d, bad, perr), ErrSubmissionInFlight)
	v := f.Snapshot()
	assert.Equal(t, validDraft, v.Draft)
	assert.Empty(t, v.Error)
	assert.Nil(t, v.Input)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, MsgSubmitSuccess, f.Snapshot().Success)
}

func TestFormViewField(t *testing.T) {
	tests := []struct {
		name string
		view FormView
		want map[string]string
	}{
		{
			name: "untouched draft",
			view: FormView{Draft: models.DefaultDraft()},
			want: map[string]string{"sensor_id": "", "name": "", "lat": "", "lon": "", "status": "online"},
		},
		{
			name: "zero values are kept",
			view: FormView{Draft: models.SubmissionDraft{SensorID: 0, Name: "Null Island", Lat: 0, Lon: 0, Status: models.StatusOffline}},
			want: map[string]string{"sensor_id": "0", "name": "Null Island", "lat": "0", "lon": "0", "status": "offline"},
		},
		{
			name: "rejected input wins",
			view: FormView{
				Draft: models.SubmissionDraft{SensorID: 4, Status: models.StatusOnline},
				Input: map[string]string{"sensor_id": "4", "name": "", "lat": "abc", "lon": "0", "status": ""},
			},
			want: map[string]string{"sensor_id": "4", "name": "", "lat": "abc", "lon": "0", "status": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, field := range DraftFields {
				assert.Equal(t, tt.want[field], tt.view.Field(field), field)
			}
		})
	}
}

func TestRejectKeepsTypedZeroes(t *testing.T) {
	f := newSubmissionForm(&fakeGateway{}, nil, testHooks())

	values := url.Values{"sensor_id": {"0"}, "name": {""}, "lat": {"0"}, "lon": {"-0.5"}}
	d, err := ParseDraft(values)
	require.Error(t, err)
	require.NoError(t, f.Reject(d, values, err))

	v := f.Snapshot()
	assert.Equal(t, "0", v.Field("sensor_id"))
	assert.Equal(t, "0", v.Field("lat"))
	assert.Equal(t, "-0.5", v.Field("lon"))

	// A later submission clears the typed values.
	require.NoError(t, f.SubmitDraft(context.Background(), validDraft))
	assert.Nil(t, f.Snapshot().Input)
}

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name    string
		values  url.Values
		want    models.SubmissionDraft
		wantErr string
	}{
		{
			name:   "complete",
			values: url.Values{"sensor_id": {"1"}, "name": {"A"}, "lat": {"10"}, "lon": {"20"}, "status": {"online"}},
			want:   validDraft,
		},
		{
			name:   "status defaults to online",
			values: url.Values{"sensor_id": {"7"}, "name": {" Mic "}, "lat": {"-33.868820"}, "lon": {"151.209296"}},
			want:   models.SubmissionDraft{SensorID: 7, Name: "Mic", Lat: -33.86882, Lon: 151.209296, Status: models.StatusOnline},
		},
		{
			name:   "offline",
			values: url.Values{"sensor_id": {"2"}, "name": {"B"}, "lat": {"0"}, "lon": {"0"}, "status": {"offline"}},
			want:   models.SubmissionDraft{SensorID: 2, Name: "B", Status: models.StatusOffline},
		},
		{
			name:    "missing name",
			values:  url.Values{"sensor_id": {"1"}, "lat": {"10"}, "lon": {"20"}},
			wantErr: "name is required",
		},
		{
			name:    "bad id",
			values:  url.Values{"sensor_id": {"x"}, "name": {"A"}, "lat": {"10"}, "lon": {"20"}},
			wantErr: "sensor_id must be an integer",
		},
		{
			name:    "bad coordinate",
			values:  url.Values{"sensor_id": {"1"}, "name": {"A"}, "lat": {"north"}, "lon": {"20"}},
			wantErr: "lat must be a number",
		},
		{
			name:    "unknown status",
			values:  url.Values{"sensor_id": {"1"}, "name": {"A"}, "lat": {"1"}, "lon": {"2"}, "status": {"broken"}},
			wantErr: "status must be online or offline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDraft(tt.values)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidDraft)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
