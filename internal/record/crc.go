package record

import (
	"encoding/binary"
	"hash/crc32"
)

// Checksum computes the CRC32 (IEEE polynomial) covering
// kind||key_len||value_len||key||value, per the on-disk layout in
// DecodeAt/Encode.
func Checksum(kind Kind, key, value []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write([]byte{byte(kind)})

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(key)))
	h.Write(lenBuf[:])
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(value)))
	h.Write(lenBuf[:])

	h.Write(key)
	h.Write(value)
	return h.Sum32()
}

// ValidateChecksum reports whether crc matches the expected checksum
// of kind/key/value.
func ValidateChecksum(kind Kind, key, value []byte, crc uint32) bool {
	return Checksum(kind, key, value) == crc
}
