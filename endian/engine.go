// Package endian selects the byte order used by the template wire format.
//
// EndianEngine unifies the ByteOrder and AppendByteOrder interfaces from
// encoding/binary so the codec can read and append fixed-width integers
// through one value chosen from the header flags.
//
// The returned engines are the stateless standard-library byte orders and
// are safe for concurrent use.
package endian

import "encoding/binary"

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary.
// It is satisfied by binary.LittleEndian and binary.BigEndian.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
