package postgres

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shotapi/internal/capture"
)

func sampleRecord() capture.Record {
	return capture.Record{
		ID:         "0192f1c2-7b7e-7000-8000-000000000001",
		Key:        "abc123",
		URL:        "https://example.com",
		Kind:       capture.KindPNG,
		Status:     capture.StatusMiss,
		Bytes:      2048,
		Duration:   1500 * time.Millisecond,
		CapturedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestRecordCaptureInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock, "")
	require.NoError(t, err)

	rec := sampleRecord()
	mock.ExpectExec("INSERT INTO captures").
		WithArgs(
			rec.ID,
			rec.Key,
			rec.URL,
			"png",
			"MISS",
			rec.Bytes,
			int64(1500),
			rec.CapturedAt,
			(*string)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordCapture(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCaptureWithError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock, "audit")
	require.NoError(t, err)

	rec := sampleRecord()
	rec.Error = "page load timed out"
	mock.ExpectExec("INSERT INTO audit").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), &rec.Error).
		WillReturnError(errors.New("connection reset"))

	err = store.RecordCapture(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert capture")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCaptureRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, store.RecordCapture(context.Background(), capture.Record{}))
}

func TestNewCaptureStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCaptureStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewCaptureStoreWithPool(mock, "captures; DROP TABLE x")
	require.Error(t, err)
}

func TestRecentScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock, "")
	require.NoError(t, err)

	rec := sampleRecord()
	msg := "element not found"
	rows := pgxmock.NewRows([]string{
		"id", "cache_key", "url", "kind", "cache_status", "bytes", "duration_ms", "captured_at", "error",
	}).
		AddRow(rec.ID, rec.Key, rec.URL, "png", "MISS", rec.Bytes, int64(1500), rec.CapturedAt, (*string)(nil)).
		AddRow("id-2", "def", "https://example.org", "pdf", "DISABLED", 0, int64(20), rec.CapturedAt, &msg)
	mock.ExpectQuery("SELECT id, cache_key").WithArgs(10).WillReturnRows(rows)

	got, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rec, got[0])
	assert.Equal(t, capture.KindPDF, got[1].Kind)
	assert.Equal(t, capture.StatusDisabled, got[1].Status)
	assert.Equal(t, msg, got[1].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurge(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock, "")
	require.NoError(t, err)

	cutoff := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectExec("DELETE FROM captures").WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := store.Purge(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	body, err := fs.ReadFile(migrations, names[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "-- +goose Up"))
	assert.True(t, strings.Contains(string(body), "-- +goose Down"))
}

func TestMigrateValidatesInput(t *testing.T) {
	t.Parallel()

	require.Error(t, Migrate(context.Background(), "", MigrateUp))
	require.Error(t, Migrate(context.Background(), "postgres://localhost/x", "sideways"))
}
