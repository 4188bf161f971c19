package lodestore

import "io"

// LoadFunc deserializes one node record. Every nested reference inside the
// record must be resolved through reg.Resolve with the same reader,
// decremented budget and visiting set, never by reading the file directly,
// so deduplication and the cycle guard stay consistent across the whole
// resolution tree.
type LoadFunc[T any] func(r io.ReadSeeker, addr NodeAddr, reg *NodeRegistry[T], maxLoads uint16, visiting VisitSet) (*T, error)

// NodeCodec is the contract a payload type satisfies to be loaded through
// the registry. DecodeNode carries the same obligations as LoadFunc.
type NodeCodec[T any] interface {
	DecodeNode(r io.ReadSeeker, addr NodeAddr, reg *NodeRegistry[T], maxLoads uint16, visiting VisitSet) (*T, error)
}
