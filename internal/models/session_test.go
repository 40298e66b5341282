package models

import (
	"errors"
	"math"
	"testing"
	"time"
)

func intPtr(i int) *int             { return &i }
func floatPtr(f float64) *float64 { return &f }

func testSession() Session {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	return Session{
		Title: "Legs",
		Start: start,
		End:   start.Add(time.Hour),
		Exercises: []Exercise{{
			Name: "Squat",
			Sets: []Set{
				{Reps: intPtr(5), WeightKg: floatPtr(100)},
				{Reps: intPtr(5), WeightKg: floatPtr(105)},
			},
		}},
	}
}

// TestValidate covers the invariants the encoder relies on.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Session)
		wantErr bool
	}{
		{"valid", func(*Session) {}, false},
		{"zero length", func(s *Session) { s.End = s.Start }, false},
		{"end before start", func(s *Session) { s.End = s.Start.Add(-time.Second) }, true},
		{"missing end", func(s *Session) { s.End = time.Time{} }, true},
		{"negative reps", func(s *Session) { s.Exercises[0].Sets[0].Reps = intPtr(-1) }, true},
		{"negative weight", func(s *Session) { s.Exercises[0].Sets[1].WeightKg = floatPtr(-2.5) }, true},
		{"negative duration", func(s *Session) { s.Exercises[0].Sets[1].DurationSeconds = intPtr(-30) }, true},
		{"absent reps", func(s *Session) { s.Exercises[0].Sets[0].Reps = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSession()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSession) {
					t.Errorf("err = %v, want ErrInvalidSession", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestSetDurationDefault verifies only an absent duration falls back to 60s
// and huge values saturate instead of wrapping negative.
func TestSetDurationDefault(t *testing.T) {
	if d := (Set{}).Duration(); d != 60*time.Second {
		t.Errorf("absent = %v, want 60s", d)
	}
	if d := (Set{DurationSeconds: intPtr(0)}).Duration(); d != 0 {
		t.Errorf("zero = %v, want 0", d)
	}
	if d := (Set{DurationSeconds: intPtr(18446744073)}).Duration(); d != time.Duration(math.MaxInt64) {
		t.Errorf("huge = %v, want max duration", d)
	}
	if d := (Set{DurationSeconds: intPtr(45)}).Duration(); d != 45*time.Second {
		t.Errorf("explicit = %v, want 45s", d)
	}
}

// TestTotals verifies set count and volume.
func TestTotals(t *testing.T) {
	s := testSession()
	if n := s.TotalSets(); n != 2 {
		t.Errorf("TotalSets = %d, want 2", n)
	}
	if v := s.TotalVolumeKg(); v != 1025 {
		t.Errorf("TotalVolumeKg = %f, want 1025", v)
	}
}
