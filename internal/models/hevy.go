package models

import (
	"fmt"
	"strings"
	"time"
)

// Naive ISO-8601 layouts, interpreted as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp as sent by Hevy. RFC 3339 with
// an offset is tried first; a timestamp without offset is taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return parsed, nil
	}
	for _, layout := range naiveLayouts {
		if t, err2 := time.ParseInLocation(layout, s, time.UTC); err2 == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q: %w", s, err)
}

// HevyWorkoutsPage is one page of GET /v1/workouts.
type HevyWorkoutsPage struct {
	Page      int           `json:"page"`
	PageCount int           `json:"page_count"`
	Workouts  []HevyWorkout `json:"workouts"`
}

// HevyWorkout is a workout as returned by the Hevy API.
type HevyWorkout struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	StartTime   string         `json:"start_time"`
	EndTime     string         `json:"end_time"`
	Exercises   []HevyExercise `json:"exercises"`
}

// HevyExercise is an exercise within a Hevy workout. Older exports use
// exercise_title, the API uses title.
type HevyExercise struct {
	Title         string    `json:"title,omitempty"`
	ExerciseTitle string    `json:"exercise_title,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	SupersetID    *int      `json:"superset_id,omitempty"`
	Sets          []HevySet `json:"sets"`
}

// HevySet is a single set. Exactly one of WeightKg / WeightLbs is normally set.
type HevySet struct {
	Index           int      `json:"index"`
	Type            string   `json:"type,omitempty"`
	Reps            *int     `json:"reps"`
	WeightKg        *float64 `json:"weight_kg,omitempty"`
	WeightLbs       *float64 `json:"weight_lbs,omitempty"`
	DurationSeconds *int     `json:"duration_seconds"`
	DistanceMeters  *float64 `json:"distance_meters,omitempty"`
}

// Name returns the exercise title, whichever field carried it.
func (e HevyExercise) Name() string {
	if e.Title != "" {
		return e.Title
	}
	if e.ExerciseTitle != "" {
		return e.ExerciseTitle
	}
	return "Unknown"
}

// Session converts the wire workout into the typed model. Timestamps must
// parse; value checks (negative reps etc.) are left to Session.Validate.
func (w HevyWorkout) Session() (Session, error) {
	start, err := ParseTimestamp(w.StartTime)
	if err != nil {
		return Session{}, fmt.Errorf("workout %q start_time: %w", w.Title, err)
	}
	end, err := ParseTimestamp(w.EndTime)
	if err != nil {
		return Session{}, fmt.Errorf("workout %q end_time: %w", w.Title, err)
	}

	s := Session{
		ID:    w.ID,
		Title: w.Title,
		Start: start,
		End:   end,
	}
	for _, he := range w.Exercises {
		ex := Exercise{Name: he.Name()}
		for _, hs := range he.Sets {
			ex.Sets = append(ex.Sets, Set{
				Reps:            hs.Reps,
				WeightKg:        hs.weightKg(),
				DurationSeconds: hs.DurationSeconds,
			})
		}
		s.Exercises = append(s.Exercises, ex)
	}
	return s, nil
}

func (s HevySet) weightKg() *float64 {
	if s.WeightKg != nil {
		kg := *s.WeightKg
		return &kg
	}
	if s.WeightLbs != nil {
		kg := *s.WeightLbs * PoundsToKg
		return &kg
	}
	return nil
}
