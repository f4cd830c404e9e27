package hash

import "github.com/cespare/xxhash/v2"

// Addr computes the xxHash64 content address of the given chunk bytes.
func Addr(data []byte) uint64 {
	return xxhash.Sum64(data)
}
