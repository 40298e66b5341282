package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	"github.com/claude/hevysync/internal/cursor"
	"github.com/claude/hevysync/internal/models"
)

// DefaultMaxAttempts is how many passes may fail on a session before it is
// abandoned.
const DefaultMaxAttempts = 5

// DefaultFetchBuffer extends the fetch window past now so sessions whose
// clock runs slightly ahead are not missed.
const DefaultFetchBuffer = time.Hour

// Source yields the sessions that started in (since, until].
type Source interface {
	FetchSessions(ctx context.Context, since, until time.Time) ([]models.Session, error)
}

// Destination accepts one encoded activity file.
type Destination interface {
	UploadActivity(ctx context.Context, filename string, r io.Reader, displayName string) error
}

// Encoder turns a session into FIT bytes.
type Encoder interface {
	Encode(s models.Session) ([]byte, error)
}

// FailurePolicy decides what a failed session does to the watermark.
type FailurePolicy string

const (
	// PolicyHold keeps the watermark below a failed session so the next pass
	// retries it, until MaxAttempts is reached.
	PolicyHold FailurePolicy = "hold"
	// PolicyAdvance moves the watermark past sessions whose upload failed;
	// they are never retried. Encode failures still hold the watermark.
	PolicyAdvance FailurePolicy = "advance"
)

// ParseFailurePolicy validates a policy name. Empty means PolicyHold.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", PolicyHold:
		return PolicyHold, nil
	case PolicyAdvance:
		return PolicyAdvance, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want %q or %q)", s, PolicyHold, PolicyAdvance)
	}
}

// Options tunes a pass.
type Options struct {
	DryRun        bool
	FailurePolicy FailurePolicy
	MaxAttempts   int
	FetchBuffer   time.Duration
	Now           func() time.Time
}

// Stats tracks the progress of one pass.
type Stats struct {
	RunID string `json:"run_id"`

	Fetched          int `json:"fetched"`
	Skipped          int `json:"skipped"`
	Accepted         int `json:"accepted"`
	AlreadyDelivered int `json:"already_delivered"`
	Encoded          int `json:"encoded"`
	Uploaded         int `json:"uploaded"`
	EncodeErrors     int `json:"encode_errors"`
	UploadErrors     int `json:"upload_errors"`
	Abandoned        int `json:"abandoned"`

	// Artifacts lists files kept in dry-run mode.
	Artifacts []string `json:"artifacts,omitempty"`
	// Errors holds the per-session failures, in processing order.
	Errors []error `json:"-"`

	WatermarkBefore time.Time `json:"watermark_before"`
	WatermarkAfter  time.Time `json:"watermark_after"`
}

// Failed returns the number of sessions that failed in this pass.
func (s *Stats) Failed() int {
	return s.EncodeErrors + s.UploadErrors
}

// Uploader runs sync passes: fetch, filter against the watermark, encode,
// upload, then advance the watermark.
type Uploader struct {
	source    Source
	dest      Destination
	enc       Encoder
	cursor    *cursor.Store
	state     *StateDB
	artifacts billy.Filesystem
	opts      Options
	log       *slog.Logger
}

// New creates an Uploader. dest and state may be nil in dry-run mode.
func New(source Source, dest Destination, enc Encoder, cur *cursor.Store, state *StateDB,
	artifacts billy.Filesystem, opts Options, log *slog.Logger) *Uploader {
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = PolicyHold
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.FetchBuffer <= 0 {
		opts.FetchBuffer = DefaultFetchBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Uploader{
		source:    source,
		dest:      dest,
		enc:       enc,
		cursor:    cur,
		state:     state,
		artifacts: artifacts,
		opts:      opts,
		log:       log,
	}
}

// ArtifactName is the file name a session is encoded to.
func ArtifactName(s models.Session) string {
	return "hevy_strength_workout_" + s.Start.Format("20060102_150405") + ".fit"
}

// Run executes one pass. Per-session failures are collected in Stats and do
// not fail the pass; a fetch failure (*FetchError) or a watermark write
// failure (ErrState) does.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	started := u.opts.Now()
	stats := &Stats{RunID: uuid.NewString()}
	log := u.log.With("run", stats.RunID)

	w := u.cursor.Load()
	stats.WatermarkBefore = w
	stats.WatermarkAfter = w

	until := started.Add(u.opts.FetchBuffer)
	log.Info("sync pass started", "since", w.Format(time.RFC3339), "until", until.Format(time.RFC3339),
		"dry_run", u.opts.DryRun, "policy", u.opts.FailurePolicy)

	sessions, err := u.source.FetchSessions(ctx, w, until)
	if err != nil {
		ferr := &FetchError{Since: w, Err: err}
		u.recordPass(ctx, log, stats, started, ferr)
		return stats, ferr
	}
	stats.Fetched = len(sessions)
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].Start.Before(sessions[j].Start) })

	var (
		settled []models.Session
		holdAt  time.Time
		holding bool
	)
	hold := func(at time.Time) {
		if !holding || at.Before(holdAt) {
			holdAt = at
			holding = true
		}
	}

	for _, s := range sessions {
		if ctx.Err() != nil {
			hold(s.Start)
			break
		}
		if !cursor.Accept(s, w) {
			stats.Skipped++
			continue
		}
		stats.Accepted++

		key := SessionKey(s)
		if !u.opts.DryRun {
			d, err := u.state.Lookup(ctx, key)
			if err != nil {
				log.Warn("ledger lookup failed", "session", s.Title, "error", err)
			}
			if d != nil && d.Status == StatusDelivered {
				log.Debug("already delivered", "session", s.Title, "start", s.Start.Format(time.RFC3339))
				stats.AlreadyDelivered++
				settled = append(settled, s)
				continue
			}
			if d != nil && d.Status == StatusAbandoned {
				log.Debug("skipping abandoned session", "session", s.Title, "attempts", d.Attempts)
				stats.Skipped++
				settled = append(settled, s)
				continue
			}
		}

		derr := u.deliver(ctx, log, s, stats)
		if derr == nil {
			settled = append(settled, s)
			if !u.opts.DryRun {
				if err := u.state.MarkDelivered(ctx, key, s, stats.RunID); err != nil {
					log.Warn("failed to mark delivered", "session", s.Title, "error", err)
				}
			}
			continue
		}

		stats.Errors = append(stats.Errors, derr)
		log.Warn("session failed", "session", s.Title, "start", s.Start.Format(time.RFC3339), "error", derr)
		if u.opts.DryRun {
			continue
		}

		attempts, lerr := u.state.RecordFailure(ctx, key, s, stats.RunID, derr)
		if lerr != nil {
			log.Warn("failed to record failure", "session", s.Title, "error", lerr)
		}
		var uerr *UploadError
		if u.opts.FailurePolicy == PolicyAdvance && errors.As(derr, &uerr) {
			settled = append(settled, s)
			continue
		}
		if lerr == nil && attempts >= u.opts.MaxAttempts {
			if err := u.state.MarkAbandoned(ctx, key); err != nil {
				log.Warn("failed to abandon session", "session", s.Title, "error", err)
				hold(s.Start)
				continue
			}
			log.Error("giving up on session", "session", s.Title,
				"start", s.Start.Format(time.RFC3339), "attempts", attempts, "error", derr)
			stats.Abandoned++
			settled = append(settled, s)
			continue
		}
		hold(s.Start)
	}

	next := cursor.NextWatermark(w, settled)
	if holding {
		limit := holdAt.Add(-cursor.Pad)
		if limit.Before(w) {
			limit = w
		}
		if next.After(limit) {
			next = limit
		}
		log.Info("watermark held below failed session", "held_at", holdAt.Format(time.RFC3339))
	}
	stats.WatermarkAfter = next

	if u.opts.DryRun {
		log.Info("dry-run: watermark not stored", "would_be", next.Format(time.RFC3339))
		return stats, nil
	}

	if err := u.cursor.Store(next); err != nil {
		serr := fmt.Errorf("%w: %w", ErrState, err)
		stats.WatermarkAfter = w
		u.recordPass(ctx, log, stats, started, serr)
		return stats, serr
	}
	u.recordPass(ctx, log, stats, started, ctx.Err())

	log.Info("sync pass complete",
		"fetched", stats.Fetched,
		"accepted", stats.Accepted,
		"uploaded", stats.Uploaded,
		"failed", stats.Failed(),
		"watermark", next.Format(time.RFC3339))
	return stats, ctx.Err()
}

// deliver encodes s, writes the artifact, and hands it to the destination.
// Outside dry-run the artifact is removed whatever the outcome.
func (u *Uploader) deliver(ctx context.Context, log *slog.Logger, s models.Session, stats *Stats) error {
	data, err := u.enc.Encode(s)
	if err != nil {
		stats.EncodeErrors++
		return &EncodeError{Session: s.Title, Start: s.Start, Err: err}
	}
	stats.Encoded++

	name := ArtifactName(s)
	if err := util.WriteFile(u.artifacts, name, data, 0o644); err != nil {
		stats.UploadErrors++
		return &UploadError{Session: s.Title, Filename: name, Err: fmt.Errorf("writing artifact: %w", err)}
	}

	if u.opts.DryRun {
		log.Info("dry-run: would upload", "session", s.Title, "file", name, "bytes", len(data))
		stats.Artifacts = append(stats.Artifacts, name)
		return nil
	}

	defer func() {
		if err := u.artifacts.Remove(name); err != nil {
			log.Warn("failed to remove artifact", "file", name, "error", err)
		}
	}()

	f, err := u.artifacts.Open(name)
	if err != nil {
		stats.UploadErrors++
		return &UploadError{Session: s.Title, Filename: name, Err: fmt.Errorf("opening artifact: %w", err)}
	}
	defer f.Close() //nolint:errcheck

	if err := u.dest.UploadActivity(ctx, name, f, s.Title); err != nil {
		stats.UploadErrors++
		return &UploadError{Session: s.Title, Filename: name, Err: err}
	}
	stats.Uploaded++
	log.Info("uploaded session", "session", s.Title, "file", name)
	return nil
}

func (u *Uploader) recordPass(ctx context.Context, log *slog.Logger, stats *Stats, started time.Time, passErr error) {
	if u.opts.DryRun || u.state == nil {
		return
	}
	p := PassRecord{
		RunID:           stats.RunID,
		StartedAt:       started,
		FinishedAt:      u.opts.Now(),
		Fetched:         stats.Fetched,
		Accepted:        stats.Accepted,
		Uploaded:        stats.Uploaded,
		Failed:          stats.Failed(),
		Abandoned:       stats.Abandoned,
		WatermarkBefore: stats.WatermarkBefore,
		WatermarkAfter:  stats.WatermarkAfter,
	}
	if passErr != nil {
		p.Error = passErr.Error()
	}
	// The pass context may already be cancelled; the record is still wanted.
	if err := u.state.RecordPass(context.WithoutCancel(ctx), p); err != nil {
		log.Warn("failed to record pass", "error", err)
	}
}

// IsPassFatal reports whether err from Run means the pass itself failed, as
// opposed to individual sessions.
func IsPassFatal(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) || errors.Is(err, ErrState)
}
