package lodestore

import "strconv"

// invalidAddrKey is reserved for the invalid address. Valid offsets are
// bounded below 2^32 and versions below 2^16, so no valid encoding can
// collide with it.
const invalidAddrKey = ^uint64(0)

// NodeAddr identifies one serialized node record in the backing file, or no
// record at all (the zero value). Offset is the byte position of the record,
// Version distinguishes logical revisions of the same node slot.
type NodeAddr struct {
	Offset  uint32
	Version uint16
	Valid   bool
}

func NewNodeAddr(offset uint32, version uint16) NodeAddr {
	return NodeAddr{Offset: offset, Version: version, Valid: true}
}

// ToKey packs the address into the 64-bit cache key: offset in the high 32
// bits, version in the low half. The key is never persisted.
func (a NodeAddr) ToKey() uint64 {
	if !a.Valid {
		return invalidAddrKey
	}
	return uint64(a.Offset)<<32 | uint64(a.Version)
}

// NodeAddrFromKey is the inverse of ToKey, total over all 64-bit inputs.
func NodeAddrFromKey(v uint64) (a NodeAddr) {
	if v == invalidAddrKey {
		return
	}
	a.Offset = uint32(v >> 32)
	a.Version = uint16(v)
	a.Valid = true
	return
}

func (a NodeAddr) String() string {
	if !a.Valid {
		return "invalid"
	}
	return strconv.FormatUint(uint64(a.Offset), 10) + "@" + strconv.FormatUint(uint64(a.Version), 10)
}
