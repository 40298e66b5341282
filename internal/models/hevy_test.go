package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

// TestParseTimestampOffset verifies parsing an RFC 3339 timestamp with offset.
func TestParseTimestampOffset(t *testing.T) {
	got, err := ParseTimestamp("2024-02-06T14:30:00-08:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 2, 6, 22, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestParseTimestampNaive verifies that a timestamp without offset is UTC.
func TestParseTimestampNaive(t *testing.T) {
	got, err := ParseTimestamp("2024-02-06T14:30:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 2, 6, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestParseTimestampInvalid verifies that garbage is rejected.
func TestParseTimestampInvalid(t *testing.T) {
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatal("expected error for invalid timestamp")
	}
}

const sampleWorkout = `{
  "id": "b459cba5-cd6d-463c-abd6-54f8eafcadcb",
  "title": "Push Day",
  "start_time": "2024-01-01T10:00:00+00:00",
  "end_time": "2024-01-01T11:00:00+00:00",
  "exercises": [
    {
      "exercise_title": "Dumbbell Bench Press",
      "sets": [
        {"index": 0, "type": "normal", "weight_lbs": 50, "reps": 10, "duration_seconds": 60},
        {"index": 1, "type": "normal", "weight_lbs": 55, "reps": 8, "duration_seconds": null}
      ]
    },
    {
      "title": "Plank",
      "sets": [
        {"index": 0, "type": "normal", "weight_kg": null, "reps": null, "duration_seconds": 90}
      ]
    }
  ]
}`

// TestHevyWorkoutSession verifies conversion of the wire format into the typed
// model, including lbs→kg normalization and both exercise title fields.
func TestHevyWorkoutSession(t *testing.T) {
	var w HevyWorkout
	if err := json.Unmarshal([]byte(sampleWorkout), &w); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	s, err := w.Session()
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if s.Title != "Push Day" {
		t.Errorf("title = %q, want Push Day", s.Title)
	}
	if s.Elapsed() != time.Hour {
		t.Errorf("elapsed = %v, want 1h", s.Elapsed())
	}
	if len(s.Exercises) != 2 {
		t.Fatalf("exercises = %d, want 2", len(s.Exercises))
	}
	if s.Exercises[0].Name != "Dumbbell Bench Press" {
		t.Errorf("exercise[0] = %q", s.Exercises[0].Name)
	}
	if s.Exercises[1].Name != "Plank" {
		t.Errorf("exercise[1] = %q", s.Exercises[1].Name)
	}

	kg := *s.Exercises[0].Sets[0].WeightKg
	if math.Abs(kg-22.6796185) > 1e-6 {
		t.Errorf("weight = %f kg, want 22.6796185", kg)
	}
	if d := s.Exercises[0].Sets[1].Duration(); d != DefaultSetDuration {
		t.Errorf("null duration = %v, want default %v", d, DefaultSetDuration)
	}
	if d := s.Exercises[1].Sets[0].Duration(); d != 90*time.Second {
		t.Errorf("duration = %v, want 90s", d)
	}
	if s.Exercises[1].Sets[0].WeightKg != nil {
		t.Error("expected nil weight for bodyweight set")
	}
}

// TestHevyWorkoutSessionBadTime verifies that unparsable timestamps are
// rejected at the fetch boundary.
func TestHevyWorkoutSessionBadTime(t *testing.T) {
	w := HevyWorkout{Title: "x", StartTime: "soon", EndTime: "2024-01-01T11:00:00Z"}
	if _, err := w.Session(); err == nil {
		t.Fatal("expected error for bad start_time")
	}
}

// TestHevySetWeightKgWins verifies weight_kg takes precedence over weight_lbs.
func TestHevySetWeightKgWins(t *testing.T) {
	kg, lbs := 100.0, 10.0
	s := HevySet{WeightKg: &kg, WeightLbs: &lbs}
	if got := *s.weightKg(); got != 100 {
		t.Errorf("weight = %f, want 100", got)
	}
}
