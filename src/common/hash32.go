package common

import "hash/fnv"

// Hash32 is the 32-bit FNV-1a hash of data. Node identifiers that are not set
// explicitly in the address book are derived from the public key this way.
func Hash32(data []byte) uint32 {
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32()
}
