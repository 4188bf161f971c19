package lodestore

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// GraphNode is a minimal adjacency payload: a value plus the neighbor set.
// Neighbors are held through LazyNode handles, so a neighbor may be fully
// resolved, or a placeholder when the depth budget or cycle guard cut the
// chain, or an unpersisted reference with an invalid address.
type GraphNode struct {
	Value     uint64
	Neighbors []*LazyNode[GraphNode]
}

// GraphNodeCodec reads and writes GraphNode records.
//
// Record layout, big-endian, starting at the record's offset:
//
//	[8] value
//	[2] neighbor count
//	[6] per neighbor: offset u32 + version u16, all ones = no address
type GraphNodeCodec struct{}

const (
	graphNodeHeaderSize = 10
	wireAddrSize        = 6
)

// DecodeNode reads the record at addr and resolves every neighbor reference
// through reg. The whole record is read before the first nested resolve, so
// recursion is free to move the shared cursor.
func (c GraphNodeCodec) DecodeNode(r io.ReadSeeker, addr NodeAddr, reg *NodeRegistry[GraphNode], maxLoads uint16, visiting VisitSet) (*GraphNode, error) {
	if _, err := r.Seek(int64(addr.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek node %s: %w", addr.String(), err)
	}
	var hdr [graphNodeHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read node %s: %w", addr.String(), err)
	}
	value := binary.BigEndian.Uint64(hdr[0:8])
	count := binary.BigEndian.Uint16(hdr[8:10])
	refs := make([]byte, int(count)*wireAddrSize)
	if _, err := io.ReadFull(r, refs); err != nil {
		return nil, fmt.Errorf("read node %s refs: %w", addr.String(), err)
	}

	node := &GraphNode{
		Value:     value,
		Neighbors: make([]*LazyNode[GraphNode], 0, count),
	}
	for i := 0; i < int(count); i++ {
		naddr := wireAddrAt(refs[i*wireAddrSize:])
		if !naddr.Valid {
			// Unpersisted reference, nothing to resolve.
			node.Neighbors = append(node.Neighbors, newPlaceholderNode[GraphNode](naddr))
			continue
		}
		neighbor, err := reg.Resolve(naddr, r, c.DecodeNode, maxLoads, visiting)
		if err != nil {
			return nil, err
		}
		node.Neighbors = append(node.Neighbors, neighbor)
	}
	return node, nil
}

// EncodeNode builds the on-disk form of a record with the given value and
// neighbor addresses.
func (GraphNodeCodec) EncodeNode(value uint64, neighbors []NodeAddr) []byte {
	b := make([]byte, 0, graphNodeHeaderSize+len(neighbors)*wireAddrSize)
	b = binary.BigEndian.AppendUint64(b, value)
	b = binary.BigEndian.AppendUint16(b, uint16(len(neighbors)))
	for _, a := range neighbors {
		b = appendWireAddr(b, a)
	}
	return b
}

// EncodedSize returns the record size for a node with n neighbors.
func (GraphNodeCodec) EncodedSize(n int) uint32 {
	return graphNodeHeaderSize + uint32(n)*wireAddrSize
}

// AppendGraphNode writes a record at the end of w and returns its address.
// It belongs to the test/demo write path; the registry never calls it.
func AppendGraphNode(w io.WriteSeeker, version uint16, value uint64, neighbors []NodeAddr) (NodeAddr, error) {
	end, err := w.Seek(0, io.SeekEnd)
	if err != nil {
		return NodeAddr{}, err
	}
	// math.MaxUint32 itself is rejected too: a record there would collide
	// with the 6-byte "no address" sentinel on the wire.
	if end >= math.MaxUint32 {
		return NodeAddr{}, errOffsetOverflow
	}
	if _, err = w.Write(GraphNodeCodec{}.EncodeNode(value, neighbors)); err != nil {
		return NodeAddr{}, err
	}
	return NewNodeAddr(uint32(end), version), nil
}

func appendWireAddr(b []byte, a NodeAddr) []byte {
	if !a.Valid {
		return append(b, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	}
	b = binary.BigEndian.AppendUint32(b, a.Offset)
	b = binary.BigEndian.AppendUint16(b, a.Version)
	return b
}

func wireAddrAt(b []byte) NodeAddr {
	offset := binary.BigEndian.Uint32(b)
	version := binary.BigEndian.Uint16(b[4:])
	if offset == math.MaxUint32 && version == math.MaxUint16 {
		return NodeAddr{}
	}
	return NewNodeAddr(offset, version)
}
