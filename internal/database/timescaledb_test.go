package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/gatewaydash/internal/models"
)

func newMockRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepoFromDB(db), mock
}

var insertRe = regexp.QuoteMeta("INSERT INTO latest_records")

func sampleRecords() []models.LatestRecord {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []models.LatestRecord{
		{SensorID: 1, Coeff: 0.91, Lag: 0.002, Timestamp: ts, RecordingPath: "recordings/1_1714557600.wav"},
		{SensorID: 2, Coeff: 0.45, Lag: -0.01, Timestamp: ts.Add(time.Second)},
	}
}

func TestSaveLatest(t *testing.T) {
	repo, mock := newMockRepo(t)
	records := sampleRecords()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insertRe)
	prep.ExpectExec().
		WithArgs(1, sqlmock.AnyArg(), 0.91, 0.002, "recordings/1_1714557600.wav").
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(2, sqlmock.AnyArg(), 0.45, -0.01, "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveLatest(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveLatestRollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insertRe)
	prep.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.SaveLatest(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveLatestEmptyIsNoop(t *testing.T) {
	repo, mock := newMockRepo(t)

	require.NoError(t, repo.SaveLatest(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	tests := []struct {
		name      string
		timescale bool
	}{
		{name: "plain postgres", timescale: false},
		{name: "timescale", timescale: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)

			mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS latest_records")).
				WillReturnResult(sqlmock.NewResult(0, 0))
			if tt.timescale {
				mock.ExpectExec(regexp.QuoteMeta("SELECT create_hypertable('latest_records'")).
					WillReturnResult(sqlmock.NewResult(0, 0))
			}

			require.NoError(t, repo.EnsureSchema(context.Background(), tt.timescale))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
