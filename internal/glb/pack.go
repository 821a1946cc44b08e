package glb

import "encoding/binary"

// Pack assembles a GLB container from a JSON chunk and an optional BIN chunk,
// padding both to 4-byte boundaries as the format requires. For tests and
// fixtures.
func Pack(jsonChunk, binChunk []byte) []byte {
	js := pad(jsonChunk, ' ')
	bin := pad(binChunk, 0)
	total := HeaderSize + ChunkHeaderSize + len(js)
	if len(bin) > 0 {
		total += ChunkHeaderSize + len(bin)
	}
	out := make([]byte, 0, total)
	out = binary.LittleEndian.AppendUint32(out, Magic)
	out = binary.LittleEndian.AppendUint32(out, Version)
	out = binary.LittleEndian.AppendUint32(out, uint32(total))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(js)))
	out = binary.LittleEndian.AppendUint32(out, ChunkTypeJSON)
	out = append(out, js...)
	if len(bin) > 0 {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(bin)))
		out = binary.LittleEndian.AppendUint32(out, ChunkTypeBIN)
		out = append(out, bin...)
	}
	return out
}

func pad(b []byte, fill byte) []byte {
	n := len(b)
	if n%4 == 0 {
		return b
	}
	out := make([]byte, n, n+4-n%4)
	copy(out, b)
	for len(out)%4 != 0 {
		out = append(out, fill)
	}
	return out
}
