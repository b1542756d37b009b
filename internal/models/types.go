package models

import "time"

// SensorStatus is the reported connectivity of a sensor.
type SensorStatus string

const (
	StatusOnline  SensorStatus = "online"
	StatusOffline SensorStatus = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s SensorStatus) Valid() bool {
	return s == StatusOnline || s == StatusOffline
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Sensor represents a registered device as returned by GET /sensors
type Sensor struct {
	SensorID int          `json:"sensor_id"`
	Name     string       `json:"name"`
	Location Location     `json:"location"`
	Status   SensorStatus `json:"status"`
}

// AnalysisRecord is a correlation result for one sensor at one point in time.
type AnalysisRecord struct {
	SensorID      int       `json:"sensor_id"`
	Coeff         float64   `json:"coeff"`
	Lag           float64   `json:"lag"`
	Timestamp     time.Time `json:"timestamp"`
	RecordingPath string    `json:"recording_path"`
}

// HasRecording reports whether an audio asset is linked to the record.
func (r AnalysisRecord) HasRecording() bool {
	return r.RecordingPath != ""
}

// LatestRecord is the most recent AnalysisRecord of a sensor.
type LatestRecord = AnalysisRecord

// AnalysisPage represents the paginated response of GET /data
type AnalysisPage struct {
	TotalCount int              `json:"totalCount"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	Records    []AnalysisRecord `json:"records"`
}

// SensorUpsert is the body of POST /sensors
type SensorUpsert struct {
	SensorID int          `json:"sensor_id"`
	Name     string       `json:"name"`
	Location Location     `json:"location"`
	Status   SensorStatus `json:"status"`
}

// SubmissionDraft is the mutable state of the sensor form.
type SubmissionDraft struct {
	SensorID int          `json:"sensor_id"`
	Name     string       `json:"name"`
	Lat      float64      `json:"lat"`
	Lon      float64      `json:"lon"`
	Status   SensorStatus `json:"status"`
}

// DefaultDraft returns the draft shown on an empty form.
func DefaultDraft() SubmissionDraft {
	return SubmissionDraft{Status: StatusOnline}
}

// Payload converts the draft into the wire body of POST /sensors.
func (d SubmissionDraft) Payload() SensorUpsert {
	return SensorUpsert{
		SensorID: d.SensorID,
		Name:     d.Name,
		Location: Location{Lat: d.Lat, Lon: d.Lon},
		Status:   d.Status,
	}
}
