package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/gatewaydash/internal/models"
)

var (
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrInvalidDraft       = errors.New("invalid sensor draft")
)

// SensorUpserter is the part of the gateway used by the form.
type SensorUpserter interface {
	UpsertSensor(ctx context.Context, sensor models.SensorUpsert) error
}

// SubmissionForm holds the sensor draft and the outcome of the last
// submission. Updates are pessimistic: the registry is only refreshed after
// the gateway accepted the sensor.
type SubmissionForm struct {
	gateway   SensorUpserter
	onSuccess func(ctx context.Context)
	hooks     hooks

	mu         sync.Mutex
	draft      models.SubmissionDraft
	input      map[string]string
	submitting bool
	success    string
	err        string
}

// FormView is an immutable copy of the form. Input holds the raw values of
// a rejected draft.
type FormView struct {
	Draft      models.SubmissionDraft `json:"draft"`
	Input      map[string]string      `json:"input,omitempty"`
	Submitting bool                   `json:"submitting"`
	Success    string                 `json:"success,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// DraftFields are the form inputs of a draft.
var DraftFields = []string{"sensor_id", "name", "lat", "lon", "status"}

// Field returns the text of the named input: what was typed for a rejected
// draft, otherwise the draft value. Numbers of an untouched draft are empty.
func (v FormView) Field(name string) string {
	if v.Input != nil {
		return v.Input[name]
	}
	untouched := v.Draft == models.DefaultDraft()
	switch name {
	case "sensor_id":
		if untouched {
			return ""
		}
		return strconv.Itoa(v.Draft.SensorID)
	case "name":
		return v.Draft.Name
	case "lat", "lon":
		if untouched {
			return ""
		}
		n := v.Draft.Lat
		if name == "lon" {
			n = v.Draft.Lon
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case "status":
		return string(v.Draft.Status)
	}
	return ""
}

func newSubmissionForm(gw SensorUpserter, onSuccess func(ctx context.Context), h hooks) *SubmissionForm {
	return &SubmissionForm{
		gateway:   gw,
		onSuccess: onSuccess,
		hooks:     h,
		draft:     models.DefaultDraft(),
	}
}

// SetDraft replaces the draft.
func (f *SubmissionForm) SetDraft(d models.SubmissionDraft) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = d
	f.input = nil
}

// Draft returns the current draft.
func (f *SubmissionForm) Draft() models.SubmissionDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Submit posts the current draft.
func (f *SubmissionForm) Submit(ctx context.Context) error {
	return f.submit(ctx, nil)
}

// SubmitDraft replaces the draft and posts it, unless a submission is
// already in flight.
func (f *SubmissionForm) SubmitDraft(ctx context.Context, d models.SubmissionDraft) error {
	return f.submit(ctx, &d)
}

// Reject records a draft that failed local checks along with the values
// as typed. No request is made. Like a submit, it is refused while a
// submission is in flight.
func (f *SubmissionForm) Reject(d models.SubmissionDraft, input url.Values, reason error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return ErrSubmissionInFlight
	}
	f.draft = d
	f.input = make(map[string]string, len(DraftFields))
	for _, k := range DraftFields {
		f.input[k] = input.Get(k)
	}
	f.success = ""
	f.err = MsgDraftInvalid
	f.hooks.logger.WithFields(logrus.Fields{
		"view":  ViewForm,
		"error": reason,
	}).Info("Rejected sensor draft")
	return nil
}

func (f *SubmissionForm) submit(ctx context.Context, replace *models.SubmissionDraft) error {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if replace != nil {
		f.draft = *replace
	}
	f.submitting = true
	f.input = nil
	f.success = ""
	f.err = ""
	draft := f.draft
	f.mu.Unlock()

	start := time.Now()
	err := f.gateway.UpsertSensor(ctx, draft.Payload())
	f.hooks.synced(ViewForm, start, err)

	f.mu.Lock()
	f.submitting = false
	if err != nil {
		f.err = MsgSubmitFailed
		f.mu.Unlock()
		return err
	}
	f.success = MsgSubmitSuccess
	f.draft = models.DefaultDraft()
	f.mu.Unlock()

	f.hooks.logger.WithFields(logrus.Fields{
		"view":      ViewForm,
		"sensor_id": draft.SensorID,
	}).Info("Sensor created/updated")

	if f.onSuccess != nil {
		f.onSuccess(ctx)
	}
	return nil
}

// Snapshot returns a copy of the form state.
func (f *SubmissionForm) Snapshot() FormView {
	f.mu.Lock()
	defer f.mu.Unlock()
	var input map[string]string
	if f.input != nil {
		input = make(map[string]string, len(f.input))
		for k, v := range f.input {
			input[k] = v
		}
	}
	return FormView{
		Draft:      f.draft,
		Input:      input,
		Submitting: f.submitting,
		Success:    f.success,
		Error:      f.err,
	}
}

// ParseDraft reads a draft from form values. sensor_id, name, lat and lon
// are required; status defaults to online. The returned draft carries every
// field that could be read, even when err is non-nil.
func ParseDraft(values url.Values) (models.SubmissionDraft, error) {
	d := models.DefaultDraft()
	var problems []string

	if v := strings.TrimSpace(values.Get("sensor_id")); v == "" {
		problems = append(problems, "sensor_id is required")
	} else if id, err := strconv.Atoi(v); err != nil {
		problems = append(problems, "sensor_id must be an integer")
	} else {
		d.SensorID = id
	}

	d.Name = strings.TrimSpace(values.Get("name"))
	if d.Name == "" {
		problems = append(problems, "name is required")
	}

	for _, field := range []struct {
		key string
		dst *float64
	}{{"lat", &d.Lat}, {"lon", &d.Lon}} {
		v := strings.TrimSpace(values.Get(field.key))
		if v == "" {
			problems = append(problems, field.key+" is required")
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			problems = append(problems, field.key+" must be a number")
			continue
		}
		*field.dst = n
	}

	if v := strings.TrimSpace(values.Get("status")); v != "" {
		s := models.SensorStatus(v)
		if !s.Valid() {
			problems = append(problems, "status must be online or offline")
		} else {
			d.Status = s
		}
	}

	if len(problems) > 0 {
		return d, fmt.Errorf("%w: %s", ErrInvalidDraft, strings.Join(problems, ", "))
	}
	return d, nil
}
