// Package fit encodes strength-training sessions as FIT activity files and
// decodes the subset of the format it produces.
//
// Only four message types are supported: file_id, session, event and record.
// A file is laid out as a 14-byte header, a definition message for each
// message type the first time it appears followed by its data messages, and
// a trailing CRC-16 over everything before it.
package fit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Epoch is the reference instant of FIT timestamps.
var Epoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

var (
	// ErrTimestampRange is returned for instants FIT cannot represent.
	ErrTimestampRange = errors.New("timestamp outside FIT range")
	// ErrBadCRC is returned by Decode when a header or file CRC mismatches.
	ErrBadCRC = errors.New("fit: crc mismatch")
	// ErrFormat is returned by Decode for malformed or unsupported input.
	ErrFormat = errors.New("fit: malformed file")
)

// Header constants.
const (
	headerSize      = 14
	protocolVersion = 0x20 // 2.0
	profileVersion  = 2132 // 21.32
	dataType        = ".FIT"
)

// Global message numbers.
const (
	mesgNumFileID  uint16 = 0
	mesgNumSession uint16 = 18
	mesgNumRecord  uint16 = 20
	mesgNumEvent   uint16 = 21
)

// Field base types.
const (
	baseEnum    byte = 0x00
	baseUint8   byte = 0x02
	baseUint16  byte = 0x84
	baseUint32  byte = 0x86
	baseUint32z byte = 0x8C
)

// Profile enum values used by the encoder.
const (
	FileTypeActivity byte = 4

	ManufacturerGarmin uint16 = 1

	SportTraining            byte = 10
	SubSportStrengthTraining byte = 20

	EventTimer   byte = 0
	EventSession byte = 8

	EventTypeStart byte = 0
	EventTypeStop  byte = 1
)

// DateTime is a FIT timestamp: whole seconds since Epoch.
type DateTime uint32

// Timestamp converts t to a FIT DateTime. Sub-second precision is truncated,
// never rounded, so identical inputs always map to the same value.
func Timestamp(t time.Time) (DateTime, error) {
	d := t.Sub(Epoch)
	if d < 0 {
		return 0, fmt.Errorf("%w: %s precedes %s", ErrTimestampRange, t.Format(time.RFC3339), Epoch.Format(time.RFC3339))
	}
	secs := int64(d / time.Second)
	if secs >= math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s", ErrTimestampRange, t.Format(time.RFC3339))
	}
	return DateTime(secs), nil
}

// Time returns the UTC instant of a FIT DateTime.
func (d DateTime) Time() time.Time {
	return Epoch.Add(time.Duration(d) * time.Second)
}

func (d DateTime) String() string {
	return d.Time().Format(time.RFC3339)
}
