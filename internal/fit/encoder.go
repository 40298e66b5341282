package fit

import (
	"fmt"
	"math"
	"time"

	"github.com/claude/hevysync/internal/models"
)

// Device identity written into every file. Garmin Connect only needs a
// plausible Garmin device; the values are fixed so output stays stable.
const (
	DefaultProduct      uint16 = 12345
	DefaultSerialNumber uint32 = 0x12345678
)

// CaloriesPerMinute is the burn-rate estimate for strength training.
const CaloriesPerMinute = 6

// Option configures an Encoder.
type Option func(*Encoder)

// WithProduct overrides the product code in file_id.
func WithProduct(product uint16) Option {
	return func(e *Encoder) { e.product = product }
}

// WithSerialNumber overrides the serial number in file_id.
func WithSerialNumber(serial uint32) Option {
	return func(e *Encoder) { e.serial = serial }
}

// WithCreationClock stamps file_id.time_created with now() instead of the
// session start. Output then varies with the clock unless it is pinned.
func WithCreationClock(now func() time.Time) Option {
	return func(e *Encoder) { e.now = now }
}

// Encoder turns sessions into FIT activity files. It holds configuration
// only; Encode has no side effects and is safe for concurrent use.
type Encoder struct {
	manufacturer uint16
	product      uint16
	serial       uint32
	now          func() time.Time
}

// NewEncoder creates an Encoder with the default device identity.
func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{
		manufacturer: ManufacturerGarmin,
		product:      DefaultProduct,
		serial:       DefaultSerialNumber,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode returns the complete FIT file for s, or an error and no bytes.
func (e *Encoder) Encode(s models.Session) ([]byte, error) {
	msgs, err := e.Messages(s)
	if err != nil {
		return nil, err
	}
	return Marshal(msgs)
}

// Messages builds the ordered message list for s: file_id, session,
// timer start, records, timer stop.
func (e *Encoder) Messages(s models.Session) ([]Message, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	start, err := Timestamp(s.Start)
	if err != nil {
		return nil, fmt.Errorf("session start: %w", err)
	}
	end, err := Timestamp(s.End)
	if err != nil {
		return nil, fmt.Errorf("session end: %w", err)
	}

	created := start
	if e.now != nil {
		created, err = Timestamp(e.now())
		if err != nil {
			return nil, fmt.Errorf("creation time: %w", err)
		}
	}

	elapsed := uint64(end - start)
	if elapsed*1000 > math.MaxUint32-1 {
		return nil, fmt.Errorf("%w: session lasts %ds", ErrTimestampRange, elapsed)
	}
	elapsedMs := uint32(elapsed * 1000)

	msgs := []Message{
		&FileID{
			Type:         FileTypeActivity,
			Manufacturer: e.manufacturer,
			Product:      e.product,
			SerialNumber: e.serial,
			TimeCreated:  created,
		},
		&SessionSummary{
			MessageIndex:       0,
			Timestamp:          end,
			Event:              EventSession,
			EventType:          EventTypeStop,
			StartTime:          start,
			Sport:              SportTraining,
			SubSport:           SubSportStrengthTraining,
			TotalElapsedTimeMs: elapsedMs,
			TotalTimerTimeMs:   elapsedMs, // no pause tracking
			TotalCalories:      estimateCalories(elapsed),
			NumLaps:            1,
		},
		&Event{Timestamp: start, Event: EventTimer, EventType: EventTypeStart},
	}

	records, err := buildRecords(s)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, records...)

	msgs = append(msgs, &Event{Timestamp: end, Event: EventTimer, EventType: EventTypeStop})
	return msgs, nil
}

// buildRecords places one record at the start of each exercise, walking a
// cursor forward by the exercise's set durations, and a trailing record at
// the session end if the cursor falls short of it. Records never pass the end.
func buildRecords(s models.Session) ([]Message, error) {
	var records []Message
	cursor := s.Start

	for _, ex := range s.Exercises {
		ts, err := Timestamp(cursor)
		if err != nil {
			return nil, fmt.Errorf("exercise %q: %w", ex.Name, err)
		}
		records = append(records, &Record{Timestamp: ts})

		for _, set := range ex.Sets {
			if d := set.Duration(); d < s.End.Sub(cursor) {
				cursor = cursor.Add(d)
			} else {
				cursor = s.End
			}
		}
	}

	if len(s.Exercises) == 0 || cursor.Before(s.End) {
		ts, err := Timestamp(s.End)
		if err != nil {
			return nil, err
		}
		records = append(records, &Record{Timestamp: ts})
	}
	return records, nil
}

// estimateCalories returns elapsed minutes × CaloriesPerMinute, truncated.
func estimateCalories(elapsedSeconds uint64) uint16 {
	kcal := elapsedSeconds * CaloriesPerMinute / 60
	if kcal >= math.MaxUint16 {
		return math.MaxUint16 - 1 // 0xFFFF is the FIT invalid marker
	}
	return uint16(kcal)
}
