package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultSetDuration is the time assumed for a set (including rest) when the
// source does not record one.
const DefaultSetDuration = 60 * time.Second

// PoundsToKg converts a weight in pounds to kilograms.
const PoundsToKg = 0.45359237

// ErrInvalidSession is wrapped by every validation failure of a Session.
var ErrInvalidSession = errors.New("invalid session")

// Session is one completed strength-training workout.
type Session struct {
	ID        string // upstream identifier, may be empty
	Title     string
	Start     time.Time
	End       time.Time
	Exercises []Exercise
}

// Exercise is a named exercise and its sets, in the order performed.
type Exercise struct {
	Name string
	Sets []Set
}

// Set is a single set. Weight is always kilograms.
type Set struct {
	Reps            *int
	WeightKg        *float64
	DurationSeconds *int
}

// Duration returns the set's recorded duration, or DefaultSetDuration when
// none was recorded. An explicit zero stays zero. Values too large for a
// time.Duration saturate at the maximum.
func (s Set) Duration() time.Duration {
	if s.DurationSeconds == nil {
		return DefaultSetDuration
	}
	secs := *s.DurationSeconds
	switch {
	case secs <= 0:
		return 0
	case int64(secs) > int64(math.MaxInt64/time.Second):
		return math.MaxInt64
	}
	return time.Duration(secs) * time.Second
}

// Elapsed returns End - Start.
func (s Session) Elapsed() time.Duration {
	return s.End.Sub(s.Start)
}

// Validate checks the invariants the encoder depends on.
func (s Session) Validate() error {
	if s.Start.IsZero() || s.End.IsZero() {
		return fmt.Errorf("%w: missing start or end time", ErrInvalidSession)
	}
	if s.End.Before(s.Start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidSession,
			s.End.Format(time.RFC3339), s.Start.Format(time.RFC3339))
	}
	for i, ex := range s.Exercises {
		for j, set := range ex.Sets {
			if set.Reps != nil && *set.Reps < 0 {
				return fmt.Errorf("%w: exercise %d (%s) set %d: negative reps %d",
					ErrInvalidSession, i+1, ex.Name, j+1, *set.Reps)
			}
			if set.WeightKg != nil && *set.WeightKg < 0 {
				return fmt.Errorf("%w: exercise %d (%s) set %d: negative weight %g",
					ErrInvalidSession, i+1, ex.Name, j+1, *set.WeightKg)
			}
			if set.DurationSeconds != nil && *set.DurationSeconds < 0 {
				return fmt.Errorf("%w: exercise %d (%s) set %d: negative duration %d",
					ErrInvalidSession, i+1, ex.Name, j+1, *set.DurationSeconds)
			}
		}
	}
	return nil
}

// TotalSets returns the number of sets across all exercises.
func (s Session) TotalSets() int {
	n := 0
	for _, ex := range s.Exercises {
		n += len(ex.Sets)
	}
	return n
}

// TotalVolumeKg returns the sum of weight × reps over all sets.
func (s Session) TotalVolumeKg() float64 {
	var total float64
	for _, ex := range s.Exercises {
		for _, set := range ex.Sets {
			if set.Reps == nil || set.WeightKg == nil {
				continue
			}
			total += float64(*set.Reps) * *set.WeightKg
		}
	}
	return total
}
