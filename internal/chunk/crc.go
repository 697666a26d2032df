package chunk

import "github.com/snksoft/crc"

// crcTable is the reflected CRC-32 (polynomial 0xEDB88320, init 0xFFFFFFFF,
// final complement) used by every PNG chunk.
var crcTable = crc.NewTable(crc.CRC32)

// Checksum computes the chunk CRC over the concatenation of parts.
// The four-byte CRC is calculated on the chunk type + chunk data, so callers
// pass both without having to join them first.
func Checksum(parts ...[]byte) uint32 {
	v := crcTable.InitCrc()
	for _, p := range parts {
		v = crcTable.UpdateCrc(v, p)
	}
	return crcTable.CRC32(v)
}
