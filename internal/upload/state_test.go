package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/hevysync/internal/models"
)

func openTestState(t *testing.T) *StateDB {
	t.Helper()
	s, err := OpenStateDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestOpenStateDBIdempotent verifies reopening an existing ledger keeps rows
// and does not re-run migrations.
func TestOpenStateDBIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sess := models.Session{ID: "abc", Title: "Legs", Start: time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)}

	s, err := OpenStateDB(dir)
	require.NoError(t, err)
	require.NoError(t, s.MarkDelivered(ctx, SessionKey(sess), sess, "run-1"))
	require.NoError(t, s.Close())

	s, err = OpenStateDB(dir)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.IsDelivered(ctx, SessionKey(sess))
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestSessionKey verifies upstream IDs are preferred and the fallback hash is
// stable across time zones.
func TestSessionKey(t *testing.T) {
	start := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "hevy:abc", SessionKey(models.Session{ID: "abc", Start: start}))

	a := SessionKey(models.Session{Title: "Legs", Start: start})
	b := SessionKey(models.Session{Title: "Legs", Start: start.In(time.FixedZone("CEST", 7200))})
	c := SessionKey(models.Session{Title: "Arms", Start: start})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "sha256:")
}

// TestLedgerFailureCounting verifies attempts accumulate and survive a later
// success.
func TestLedgerFailureCounting(t *testing.T) {
	ctx := context.Background()
	s := openTestState(t)
	sess := models.Session{ID: "w1", Title: "Push", Start: time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)}
	key := SessionKey(sess)

	d, err := s.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, d)

	for want := 1; want <= 3; want++ {
		n, err := s.RecordFailure(ctx, key, sess, "run", errors.New("boom"))
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "boom", pending[0].LastError)
	assert.True(t, pending[0].Start.Equal(sess.Start))

	require.NoError(t, s.MarkDelivered(ctx, key, sess, "run-2"))
	d, err = s.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, d.Status)
	assert.Equal(t, 3, d.Attempts)
	assert.Empty(t, d.LastError)
	assert.Equal(t, "run-2", d.RunID)
}

// TestLedgerAbandon verifies abandoned sessions leave the pending list.
func TestLedgerAbandon(t *testing.T) {
	ctx := context.Background()
	s := openTestState(t)
	sess := models.Session{ID: "w2", Title: "Pull", Start: time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)}
	key := SessionKey(sess)

	assert.Error(t, s.MarkAbandoned(ctx, key), "abandoning an unknown session")

	_, err := s.RecordFailure(ctx, key, sess, "run", errors.New("bad"))
	require.NoError(t, err)
	require.NoError(t, s.MarkAbandoned(ctx, key))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	abandoned, err := s.Abandoned(ctx)
	require.NoError(t, err)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "Pull", abandoned[0].Title)

	ok, err := s.IsDelivered(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestLedgerPasses verifies LastPass returns the newest pass.
func TestLedgerPasses(t *testing.T) {
	ctx := context.Background()
	s := openTestState(t)

	p, err := s.LastPass(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	base := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordPass(ctx, PassRecord{
		RunID: "first", StartedAt: base, FinishedAt: base.Add(time.Second),
		Fetched: 2, Accepted: 2, Uploaded: 2,
		WatermarkBefore: base.Add(-time.Hour), WatermarkAfter: base,
	}))
	require.NoError(t, s.RecordPass(ctx, PassRecord{
		RunID: "second", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Second),
		Failed: 1, Error: "fetching sessions: down",
		WatermarkBefore: base, WatermarkAfter: base,
	}))

	p, err = s.LastPass(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "second", p.RunID)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, "fetching sessions: down", p.Error)
	assert.True(t, p.WatermarkAfter.Equal(base))
}
