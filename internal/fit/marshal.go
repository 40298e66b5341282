package fit

import (
	"encoding/binary"
	"fmt"
)

const (
	definitionHeader = 0x40
	localTypeMask    = 0x0F
	maxLocalTypes    = 16
)

// Marshal serializes msgs into a complete FIT file: header, definition and
// data messages, and the trailing CRC.
func Marshal(msgs []Message) ([]byte, error) {
	locals := make(map[uint16]byte)
	var body []byte

	for i, m := range msgs {
		def := m.definition()
		local, ok := locals[def.global]
		if !ok {
			if len(locals) == maxLocalTypes {
				return nil, fmt.Errorf("message %d: more than %d message types", i, maxLocalTypes)
			}
			local = byte(len(locals))
			locals[def.global] = local
			body = appendDefinition(body, local, def)
		}

		vals := m.values()
		if len(vals) != len(def.fields) {
			return nil, fmt.Errorf("message %d (%s): %d values for %d fields", i, m.Kind(), len(vals), len(def.fields))
		}
		body = append(body, local&localTypeMask)
		for j, f := range def.fields {
			body = appendValue(body, vals[j], f.size)
		}
	}

	out := make([]byte, headerSize, headerSize+len(body)+2)
	out[0] = headerSize
	out[1] = protocolVersion
	binary.LittleEndian.PutUint16(out[2:4], profileVersion)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	copy(out[8:12], dataType)
	binary.LittleEndian.PutUint16(out[12:14], CRC(out[:12]))

	out = append(out, body...)
	out = binary.LittleEndian.AppendUint16(out, CRC(out))
	return out, nil
}

func appendDefinition(b []byte, local byte, def definition) []byte {
	b = append(b,
		definitionHeader|(local&localTypeMask),
		0, // reserved
		0, // little-endian architecture
	)
	b = binary.LittleEndian.AppendUint16(b, def.global)
	b = append(b, byte(len(def.fields)))
	for _, f := range def.fields {
		b = append(b, f.num, f.size, f.baseType)
	}
	return b
}

// appendValue writes the low size bytes of v, little-endian.
func appendValue(b []byte, v uint64, size byte) []byte {
	for i := byte(0); i < size; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}
