// Package cursor persists the sync watermark: the latest session start
// instant that has already been delivered.
package cursor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/claude/hevysync/internal/models"
)

// DefaultLookback is how far back the first pass (or a pass after the
// watermark file was lost) reaches.
const DefaultLookback = 30 * 24 * time.Hour

// Pad is added to the newest accepted start so that session is never
// selected again, even across clock-resolution differences.
const Pad = time.Second

// Store reads and writes the watermark file on a billy filesystem.
type Store struct {
	fs       billy.Filesystem
	path     string
	lookback time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLookback sets the default window used when no watermark is stored.
func WithLookback(d time.Duration) Option {
	return func(s *Store) { s.lookback = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store for the watermark file at path within fs.
func New(fs billy.Filesystem, path string, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		fs:       fs,
		path:     path,
		lookback: DefaultLookback,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the watermark file path within the filesystem.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored watermark. A missing or unreadable watermark is
// not an error: it is logged and now − lookback is returned instead.
func (s *Store) Load() time.Time {
	w, ok, err := s.Peek()
	if err != nil {
		fallback := s.now().Add(-s.lookback).UTC()
		s.log.Warn("watermark unreadable, using default window",
			"path", s.path, "error", err, "watermark", fallback.Format(time.RFC3339))
		return fallback
	}
	if !ok {
		fallback := s.now().Add(-s.lookback).UTC()
		s.log.Warn("no watermark stored, using default window",
			"path", s.path, "watermark", fallback.Format(time.RFC3339))
		return fallback
	}
	return w
}

// Peek reads the watermark without applying the default. ok is false when no
// watermark file exists.
func (s *Store) Peek() (w time.Time, ok bool, err error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("opening watermark: %w", err)
	}
	defer f.Close() //nolint:errcheck

	data, err := io.ReadAll(f)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading watermark: %w", err)
	}
	line := strings.TrimSpace(string(data))
	if line == "" {
		return time.Time{}, false, nil
	}
	w, err = models.ParseTimestamp(line)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing watermark: %w", err)
	}
	return w, true, nil
}

// Store persists w. The new value is written to a temporary file next to the
// watermark and renamed over it, so a crash leaves either the old or the new
// watermark, never a partial one.
func (s *Store) Store(w time.Time) error {
	dir := path.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating watermark dir %s: %w", dir, err)
	}

	tmp, err := s.fs.TempFile(dir, ".watermark-")
	if err != nil {
		return fmt.Errorf("creating temp watermark: %w", err)
	}
	tmpName := tmp.Name()

	line := w.UTC().Format(time.RFC3339Nano) + "\n"
	if _, err := tmp.Write([]byte(line)); err != nil {
		tmp.Close()          //nolint:errcheck
		s.fs.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("writing temp watermark: %w", err)
	}
	if syncer, ok := tmp.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			tmp.Close()          //nolint:errcheck
			s.fs.Remove(tmpName) //nolint:errcheck
			return fmt.Errorf("syncing temp watermark: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("closing temp watermark: %w", err)
	}

	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("renaming watermark: %w", err)
	}
	return nil
}

// Reset removes the stored watermark so the next Load falls back to the
// default window.
func (s *Store) Reset() error {
	if err := util.RemoveAll(s.fs, s.path); err != nil {
		return fmt.Errorf("removing watermark: %w", err)
	}
	return nil
}

// Accept reports whether s is new relative to watermark. Sessions starting at
// or before the watermark count as delivered.
func Accept(s models.Session, watermark time.Time) bool {
	return s.Start.After(watermark)
}

// NextWatermark returns max(current, newest accepted start) + Pad. The
// result is never before current.
func NextWatermark(current time.Time, accepted []models.Session) time.Time {
	latest := current
	for _, s := range accepted {
		if s.Start.After(latest) {
			latest = s.Start
		}
	}
	return latest.Add(Pad)
}
