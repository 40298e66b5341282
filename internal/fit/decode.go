package fit

import (
	"encoding/binary"
	"fmt"
)

// localDef is a definition message as read from a file.
type localDef struct {
	global    uint16
	bigEndian bool
	fields    []field
}

// Decode parses a FIT file and returns the file_id, session, event and
// record messages it contains, in file order. Other message types are
// skipped. Both CRCs are verified.
func Decode(data []byte) ([]Message, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrFormat, len(data))
	}
	hs := int(data[0])
	if hs != 12 && hs != headerSize {
		return nil, fmt.Errorf("%w: header size %d", ErrFormat, hs)
	}
	if len(data) < hs {
		return nil, fmt.Errorf("%w: truncated header", ErrFormat)
	}
	if string(data[8:12]) != dataType {
		return nil, fmt.Errorf("%w: missing %s signature", ErrFormat, dataType)
	}
	if hs == headerSize {
		if want := binary.LittleEndian.Uint16(data[12:14]); want != 0 && want != CRC(data[:12]) {
			return nil, fmt.Errorf("%w: header", ErrBadCRC)
		}
	}

	end := hs + int(binary.LittleEndian.Uint32(data[4:8]))
	if len(data) < end+2 {
		return nil, fmt.Errorf("%w: data size %d exceeds file", ErrFormat, end-hs)
	}
	if got, want := CRC(data[:end]), binary.LittleEndian.Uint16(data[end:end+2]); got != want {
		return nil, fmt.Errorf("%w: file crc %#04x, trailer %#04x", ErrBadCRC, got, want)
	}

	return decodeRecords(data[hs:end])
}

func decodeRecords(r []byte) ([]Message, error) {
	defs := make(map[byte]localDef)
	var msgs []Message

	pos := 0
	for pos < len(r) {
		h := r[pos]
		pos++
		if h&0x80 != 0 {
			return nil, fmt.Errorf("%w: compressed timestamp header at offset %d", ErrFormat, pos-1)
		}
		local := h & localTypeMask

		if h&definitionHeader != 0 {
			if h&0x20 != 0 {
				return nil, fmt.Errorf("%w: developer data is not supported", ErrFormat)
			}
			if pos+5 > len(r) {
				return nil, fmt.Errorf("%w: truncated definition", ErrFormat)
			}
			def := localDef{bigEndian: r[pos+1] == 1}
			if def.bigEndian {
				def.global = binary.BigEndian.Uint16(r[pos+2 : pos+4])
			} else {
				def.global = binary.LittleEndian.Uint16(r[pos+2 : pos+4])
			}
			n := int(r[pos+4])
			pos += 5
			if pos+3*n > len(r) {
				return nil, fmt.Errorf("%w: truncated field definitions", ErrFormat)
			}
			for i := 0; i < n; i++ {
				def.fields = append(def.fields, field{num: r[pos], size: r[pos+1], baseType: r[pos+2]})
				pos += 3
			}
			defs[local] = def
			continue
		}

		def, ok := defs[local]
		if !ok {
			return nil, fmt.Errorf("%w: data message for undefined local type %d", ErrFormat, local)
		}
		vals := make(map[byte]uint64, len(def.fields))
		for _, f := range def.fields {
			size := int(f.size)
			if pos+size > len(r) {
				return nil, fmt.Errorf("%w: truncated data message", ErrFormat)
			}
			if size <= 8 {
				vals[f.num] = readUint(r[pos:pos+size], def.bigEndian)
			}
			pos += size
		}
		if m := build(def.global, vals); m != nil {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func readUint(b []byte, bigEndian bool) uint64 {
	var v uint64
	for i := range b {
		shift := 8 * i
		if bigEndian {
			shift = 8 * (len(b) - 1 - i)
		}
		v |= uint64(b[i]) << shift
	}
	return v
}

func build(global uint16, v map[byte]uint64) Message {
	switch global {
	case mesgNumFileID:
		return &FileID{
			Type:         byte(v[0]),
			Manufacturer: uint16(v[1]),
			Product:      uint16(v[2]),
			SerialNumber: uint32(v[3]),
			TimeCreated:  DateTime(v[4]),
		}
	case mesgNumSession:
		return &SessionSummary{
			MessageIndex:       uint16(v[254]),
			Timestamp:          DateTime(v[253]),
			Event:              byte(v[0]),
			EventType:          byte(v[1]),
			StartTime:          DateTime(v[2]),
			Sport:              byte(v[5]),
			SubSport:           byte(v[6]),
			TotalElapsedTimeMs: uint32(v[7]),
			TotalTimerTimeMs:   uint32(v[8]),
			TotalCalories:      uint16(v[11]),
			NumLaps:            uint16(v[26]),
		}
	case mesgNumEvent:
		return &Event{
			Timestamp: DateTime(v[253]),
			Event:     byte(v[0]),
			EventType: byte(v[1]),
		}
	case mesgNumRecord:
		return &Record{
			Timestamp:  DateTime(v[253]),
			DistanceCm: uint32(v[5]),
		}
	default:
		return nil
	}
}
