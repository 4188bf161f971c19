package lodestore

import (
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	cmap "github.com/zbh255/gocode/container/map"
)

const (
	// defaultMaxLoads bounds how deep a single resolution chain may recurse.
	// Generous on purpose: realistic reference chains stay far below it.
	defaultMaxLoads uint16 = 1000

	defaultFilterCapacity uint = 1 << 16
)

type Config struct {
	// FilterCapacity sizes the cuckoo filter guarding the map lookups.
	// The filter is an optimization only; the map stays authoritative
	// however small the capacity is.
	FilterCapacity uint
	Logger         *slog.Logger
}

// VisitSet records the encoded addresses a single resolution chain has
// already started loading. It is threaded explicitly through every recursive
// call so independent in-flight resolutions never share a cycle guard.
type VisitSet map[uint64]struct{}

func NewVisitSet() VisitSet {
	return make(VisitSet)
}

// Visit marks key as visited, reporting false if it already was.
func (s VisitSet) Visit(key uint64) bool {
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

// NodeRegistry resolves file addresses into shared LazyNode handles, loading
// each on-disk record at most once under normal operation. A cuckoo filter
// answers "definitely absent" before the map is consulted; the map itself is
// the source of truth. All operations are safe for concurrent use.
//
// Dedup under races is best-effort, not exactly-once: two callers racing on
// the same cold address may both decode the record, but the map keeps a
// single canonical entry and both callers get correct payloads.
type NodeRegistry[T any] struct {
	// filterMu guards the filter on the lookup side; on the insert side it
	// additionally serializes the recheck-and-insert step, so the entry
	// count stays exact and the first finished load wins the slot.
	filterMu sync.RWMutex
	filter   *cuckoo.Filter
	nodes    *cmap.BTreeMap[uint64, *LazyNode[T]]
	size     atomic.Int64

	// The backing reader keeps an internal cursor, so every read holds the
	// write side of the lock. Cache hits never touch it.
	readerMu sync.RWMutex
	reader   io.ReadSeeker

	log  *slog.Logger
	stat iStat
}

func NewNodeRegistry[T any](cfg Config, r io.ReadSeeker) *NodeRegistry[T] {
	if cfg.FilterCapacity == 0 {
		cfg.FilterCapacity = defaultFilterCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &NodeRegistry[T]{
		filter: cuckoo.NewFilter(cfg.FilterCapacity),
		nodes:  cmap.NewBtreeMap[uint64, *LazyNode[T]](64),
		reader: r,
		log:    cfg.Logger,
	}
}

// Resolve runs the full load protocol for addr. The reader must be safe for
// the caller to use for the whole call; external callers normally go through
// ResolveNode or Load instead, which lock the registry's own reader.
//
// Cache hits return the existing shared handle without I/O. A zero budget or
// an address already in visiting returns an uncached placeholder handle, the
// cycle-breaking terminal case. Otherwise the record is decoded via load,
// which recursively resolves nested references with the decremented budget.
// Errors from load propagate unchanged.
func (reg *NodeRegistry[T]) Resolve(addr NodeAddr, r io.ReadSeeker, load LoadFunc[T], maxLoads uint16, visiting VisitSet) (*LazyNode[T], error) {
	key := addr.ToKey()

	reg.filterMu.RLock()
	inFilter := reg.filter.Lookup(keyBytes(key))
	reg.filterMu.RUnlock()
	if inFilter {
		if node, ok := reg.nodes.LoadOk(key); ok {
			reg.stat.cacheHit.Add(1)
			reg.log.Debug("node cache hit", "addr", addr.String())
			return node, nil
		}
		// Filter false positive, or the entry raced out between the two
		// lookups. The map stays authoritative either way.
		reg.stat.filterFalsePositive.Add(1)
	}
	reg.stat.cacheMis.Add(1)

	if maxLoads == 0 || !visiting.Visit(key) {
		reg.stat.cycleBreak.Add(1)
		reg.log.Debug("cycle guard break", "addr", addr.String(), "maxLoads", maxLoads)
		return newPlaceholderNode[T](addr), nil
	}

	reg.log.Debug("load node", "addr", addr.String(), "maxLoads", maxLoads)
	reg.stat.loadCount.Add(1)
	data, err := load(r, addr, reg, maxLoads-1, visiting)
	if err != nil {
		return nil, err
	}

	// A concurrent resolution may have finished first while this one was
	// decoding. The first insert wins; the fresh payload is discarded so
	// every caller shares one canonical handle per address. Filter before
	// map: an address present in the map must always be reported present
	// by the filter.
	reg.filterMu.Lock()
	if node, ok := reg.nodes.LoadOk(key); ok {
		reg.filterMu.Unlock()
		reg.stat.dupLoad.Add(1)
		reg.log.Debug("duplicate load discarded", "addr", addr.String())
		return node, nil
	}
	if !reg.filter.Insert(keyBytes(key)) {
		// Saturated filter. Lookups of this address stay correct through
		// the map recheck, they just pay the load path again.
		reg.stat.filterInsertFail.Add(1)
		reg.log.Warn("filter insert failed", "addr", addr.String())
	}
	node := newResolvedNode(addr, data)
	reg.nodes.StoreOk(key, node)
	reg.size.Add(1)
	reg.filterMu.Unlock()
	return node, nil
}

// ResolveNode is the external resolve entry point: it locks the registry's
// reader and starts a fresh resolution chain.
func (reg *NodeRegistry[T]) ResolveNode(addr NodeAddr, load LoadFunc[T], maxLoads uint16) (*LazyNode[T], error) {
	if !addr.Valid {
		return nil, ErrInvalidAddr
	}
	reg.readerMu.Lock()
	defer reg.readerMu.Unlock()
	return reg.Resolve(addr, reg.reader, load, maxLoads, NewVisitSet())
}

// Load decodes the record at addr as a plain payload value, driving codec
// with a fresh visiting set and the default depth budget. The root payload
// itself is not cached; only the nested references codec resolves through
// Resolve are.
func (reg *NodeRegistry[T]) Load(addr NodeAddr, codec NodeCodec[T]) (*T, error) {
	if !addr.Valid {
		return nil, ErrInvalidAddr
	}
	reg.readerMu.Lock()
	defer reg.readerMu.Unlock()
	return codec.DecodeNode(reg.reader, addr, reg, defaultMaxLoads, NewVisitSet())
}

// Get returns the cached handle for addr without triggering a load.
func (reg *NodeRegistry[T]) Get(addr NodeAddr) (*LazyNode[T], bool) {
	return reg.nodes.LoadOk(addr.ToKey())
}

// Len counts the cached entries.
func (reg *NodeRegistry[T]) Len() int {
	return int(reg.size.Load())
}

func (reg *NodeRegistry[T]) Stat() ExportStat {
	return reg.stat.export()
}

func keyBytes(key uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, key)
}
