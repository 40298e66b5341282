package fit

import (
	"fmt"
	"time"
)

// Kind identifies the variant of a Message.
type Kind int

const (
	KindFileID Kind = iota
	KindSession
	KindEvent
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindFileID:
		return "file_id"
	case KindSession:
		return "session"
	case KindEvent:
		return "event"
	case KindRecord:
		return "record"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one FIT data message. The set of implementations is closed:
// *FileID, *SessionSummary, *Event and *Record.
type Message interface {
	Kind() Kind
	definition() definition
	values() []uint64
}

// field is a field definition: field number, size in bytes and base type.
type field struct {
	num      byte
	size     byte
	baseType byte
}

// definition describes the layout of one global message type.
type definition struct {
	global uint16
	fields []field
}

// FileID identifies the file as an activity and names the creating device.
type FileID struct {
	Type         byte
	Manufacturer uint16
	Product      uint16
	SerialNumber uint32
	TimeCreated  DateTime
}

var fileIDDef = definition{
	global: mesgNumFileID,
	fields: []field{
		{num: 0, size: 1, baseType: baseEnum},    // type
		{num: 1, size: 2, baseType: baseUint16},  // manufacturer
		{num: 2, size: 2, baseType: baseUint16},  // product
		{num: 3, size: 4, baseType: baseUint32z}, // serial_number
		{num: 4, size: 4, baseType: baseUint32},  // time_created
	},
}

func (*FileID) Kind() Kind { return KindFileID }
func (*FileID) definition() definition { return fileIDDef }
func (m *FileID) values() []uint64 {
	return []uint64{
		uint64(m.Type),
		uint64(m.Manufacturer),
		uint64(m.Product),
		uint64(m.SerialNumber),
		uint64(m.TimeCreated),
	}
}

// SessionSummary summarizes the whole activity. Times are in the FIT
// millisecond scale.
type SessionSummary struct {
	MessageIndex       uint16
	Timestamp          DateTime
	Event              byte
	EventType          byte
	StartTime          DateTime
	Sport              byte
	SubSport           byte
	TotalElapsedTimeMs uint32
	TotalTimerTimeMs   uint32
	TotalCalories      uint16
	NumLaps            uint16
}

var sessionDef = definition{
	global: mesgNumSession,
	fields: []field{
		{num: 254, size: 2, baseType: baseUint16}, // message_index
		{num: 253, size: 4, baseType: baseUint32}, // timestamp
		{num: 0, size: 1, baseType: baseEnum},     // event
		{num: 1, size: 1, baseType: baseEnum},     // event_type
		{num: 2, size: 4, baseType: baseUint32},   // start_time
		{num: 5, size: 1, baseType: baseEnum},     // sport
		{num: 6, size: 1, baseType: baseEnum},     // sub_sport
		{num: 7, size: 4, baseType: baseUint32},   // total_elapsed_time
		{num: 8, size: 4, baseType: baseUint32},   // total_timer_time
		{num: 11, size: 2, baseType: baseUint16},  // total_calories
		{num: 26, size: 2, baseType: baseUint16},  // num_laps
	},
}

func (*SessionSummary) Kind() Kind { return KindSession }
func (*SessionSummary) definition() definition { return sessionDef }
func (m *SessionSummary) values() []uint64 {
	return []uint64{
		uint64(m.MessageIndex),
		uint64(m.Timestamp),
		uint64(m.Event),
		uint64(m.EventType),
		uint64(m.StartTime),
		uint64(m.Sport),
		uint64(m.SubSport),
		uint64(m.TotalElapsedTimeMs),
		uint64(m.TotalTimerTimeMs),
		uint64(m.TotalCalories),
		uint64(m.NumLaps),
	}
}

// Elapsed returns the total elapsed time.
func (m *SessionSummary) Elapsed() time.Duration {
	return time.Duration(m.TotalElapsedTimeMs) * time.Millisecond
}

// Event marks a timer or session transition.
type Event struct {
	Timestamp DateTime
	Event     byte
	EventType byte
}

var eventDef = definition{
	global: mesgNumEvent,
	fields: []field{
		{num: 253, size: 4, baseType: baseUint32}, // timestamp
		{num: 0, size: 1, baseType: baseEnum},     // event
		{num: 1, size: 1, baseType: baseEnum},     // event_type
	},
}

func (*Event) Kind() Kind { return KindEvent }
func (*Event) definition() definition { return eventDef }
func (m *Event) values() []uint64 {
	return []uint64{uint64(m.Timestamp), uint64(m.Event), uint64(m.EventType)}
}

// IsTimerStart reports whether m is a timer start event.
func (m *Event) IsTimerStart() bool { return m.Event == EventTimer && m.EventType == EventTypeStart }

// IsTimerStop reports whether m is a timer stop event.
func (m *Event) IsTimerStop() bool { return m.Event == EventTimer && m.EventType == EventTypeStop }

// Record is a sparse point-in-time marker. Strength sessions carry no
// telemetry, so distance is always zero.
type Record struct {
	Timestamp  DateTime
	DistanceCm uint32
}

var recordDef = definition{
	global: mesgNumRecord,
	fields: []field{
		{num: 253, size: 4, baseType: baseUint32}, // timestamp
		{num: 5, size: 4, baseType: baseUint32},   // distance
	},
}

func (*Record) Kind() Kind { return KindRecord }
func (*Record) definition() definition { return recordDef }
func (m *Record) values() []uint64 {
	return []uint64{uint64(m.Timestamp), uint64(m.DistanceCm)}
}

// Describe renders a message as one human-readable line.
func Describe(m Message) string {
	switch v := m.(type) {
	case *FileID:
		return fmt.Sprintf("file_id type=%d manufacturer=%d product=%d serial=%#08x time_created=%s",
			v.Type, v.Manufacturer, v.Product, v.SerialNumber, v.TimeCreated)
	case *SessionSummary:
		return fmt.Sprintf("session start=%s end=%s elapsed=%s sport=%d/%d calories=%d laps=%d",
			v.StartTime, v.Timestamp, v.Elapsed(), v.Sport, v.SubSport, v.TotalCalories, v.NumLaps)
	case *Event:
		return fmt.Sprintf("event time=%s event=%d type=%d", v.Timestamp, v.Event, v.EventType)
	case *Record:
		return fmt.Sprintf("record time=%s", v.Timestamp)
	default:
		return fmt.Sprintf("unknown message %T", m)
	}
}
