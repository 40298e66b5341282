package upload

import (
	"errors"
	"fmt"
	"time"
)

// ErrState marks a pass whose watermark could not be persisted. Sessions
// uploaded in that pass may be delivered again by the next one; the ledger
// suppresses those repeats.
var ErrState = errors.New("persisting sync state")

// FetchError aborts a pass: the session source could not be read.
type FetchError struct {
	Since time.Time
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching sessions since %s: %v", e.Since.Format(time.RFC3339), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// EncodeError reports a session that could not be converted to a FIT file.
type EncodeError struct {
	Session string
	Start   time.Time
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding %q (%s): %v", e.Session, e.Start.Format(time.RFC3339), e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// UploadError reports a session the destination did not accept.
type UploadError struct {
	Session  string
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %q as %s: %v", e.Session, e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
