package cursor

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/hevysync/internal/models"
)

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(memfs.New(), "state/watermark", discardLogger(),
		WithClock(func() time.Time { return testNow }))
}

func sessionAt(ts string) models.Session {
	start, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return models.Session{Title: ts, Start: start, End: start.Add(time.Hour)}
}

// TestLoadMissingDefaults verifies a fresh install looks back 30 days.
func TestLoadMissingDefaults(t *testing.T) {
	s := newStore(t)
	assert.Equal(t, testNow.Add(-30*24*time.Hour), s.Load())
}

// TestLoadCorruptDefaults verifies an unparsable watermark is recovered from.
func TestLoadCorruptDefaults(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "watermark", []byte("last tuesday\n"), 0o644))

	s := New(fs, "watermark", discardLogger(), WithClock(func() time.Time { return testNow }))
	assert.Equal(t, testNow.Add(-30*24*time.Hour), s.Load())

	_, _, err := s.Peek()
	assert.Error(t, err)
}

// TestLoadEmptyFileDefaults verifies an empty file counts as no watermark.
func TestLoadEmptyFileDefaults(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "watermark", nil, 0o644))

	s := New(fs, "watermark", discardLogger(),
		WithClock(func() time.Time { return testNow }), WithLookback(7*24*time.Hour))
	assert.Equal(t, testNow.Add(-7*24*time.Hour), s.Load())
}

// TestLoadNaiveTimestamp verifies a watermark written without an offset is
// read as UTC.
func TestLoadNaiveTimestamp(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "watermark", []byte("2024-06-01T00:00:00"), 0o644))

	s := New(fs, "watermark", discardLogger())
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), s.Load())
}

// TestStoreRoundTrip verifies Store then Load returns the same instant and
// the file holds a single RFC 3339 line.
func TestStoreRoundTrip(t *testing.T) {
	s := newStore(t)
	w := time.Date(2024, 6, 2, 8, 0, 1, 500_000_000, time.FixedZone("CEST", 2*3600))

	require.NoError(t, s.Store(w))
	assert.True(t, s.Load().Equal(w))

	data, err := util.ReadFile(s.fs, s.Path())
	require.NoError(t, err)
	assert.Equal(t, "2024-06-02T06:00:01.5Z\n", string(data))
}

// TestStoreLeavesNoTempFiles verifies the temp file is renamed away.
func TestStoreLeavesNoTempFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Store(testNow))
	require.NoError(t, s.Store(testNow.Add(time.Hour)))

	entries, err := s.fs.ReadDir("state")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "watermark", entries[0].Name())
}

// TestReset verifies Reset returns the store to the default window.
func TestReset(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Store(testNow))
	require.NoError(t, s.Reset())
	require.NoError(t, s.Reset(), "reset of a missing watermark is a no-op")

	_, ok, err := s.Peek()
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestAcceptBoundary verifies the strict inequality: a session starting
// exactly at the watermark is already delivered.
func TestAcceptBoundary(t *testing.T) {
	w := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, Accept(sessionAt("2024-05-31T23:59:59Z"), w))
	assert.False(t, Accept(sessionAt("2024-06-01T00:00:00Z"), w))
	assert.True(t, Accept(sessionAt("2024-06-01T00:00:01Z"), w))
}

// TestScenario replays the reference pass: one rejected, one accepted
// session, and the resulting watermark.
func TestScenario(t *testing.T) {
	w := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fetched := []models.Session{
		sessionAt("2024-05-31T23:59:59Z"),
		sessionAt("2024-06-02T08:00:00Z"),
	}

	var accepted []models.Session
	for _, s := range fetched {
		if Accept(s, w) {
			accepted = append(accepted, s)
		}
	}
	require.Len(t, accepted, 1)
	assert.Equal(t, "2024-06-02T08:00:00Z", accepted[0].Title)

	next := NextWatermark(w, accepted)
	assert.Equal(t, time.Date(2024, 6, 2, 8, 0, 1, 0, time.UTC), next)

	// At-most-once: nothing accepted in this pass is accepted again.
	for _, s := range fetched {
		assert.False(t, Accept(s, next))
	}
}

// TestNextWatermarkMonotonic verifies the watermark never moves backwards,
// even when every accepted session is older than the current watermark.
func TestNextWatermarkMonotonic(t *testing.T) {
	w := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, w.Add(Pad), NextWatermark(w, nil))
	assert.Equal(t, w.Add(Pad), NextWatermark(w, []models.Session{sessionAt("2024-01-01T00:00:00Z")}))

	s := newStore(t)
	current := w
	batches := [][]models.Session{
		{sessionAt("2024-06-03T00:00:00Z"), sessionAt("2024-06-02T00:00:00Z")},
		nil,
		{sessionAt("2024-05-01T00:00:00Z")},
		{sessionAt("2024-06-05T10:30:00Z")},
	}
	for _, batch := range batches {
		next := NextWatermark(current, batch)
		require.NoError(t, s.Store(next))
		stored := s.Load()
		assert.False(t, stored.Before(current), "watermark went backwards: %s < %s", stored, current)
		current = stored
	}
}
