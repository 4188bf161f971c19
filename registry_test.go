package lodestore

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingReader struct {
	r     io.ReadSeeker
	reads int
	seeks int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

func (c *countingReader) Seek(offset int64, whence int) (int64, error) {
	c.seeks++
	return c.r.Seek(offset, whence)
}

func (c *countingReader) ops() int {
	return c.reads + c.seeks
}

func newTestReader(dat []byte) *countingReader {
	return &countingReader{r: bytes.NewReader(dat)}
}

// buildCycle lays out two records that reference each other.
func buildCycle() (dat []byte, aAddr, bAddr NodeAddr) {
	codec := GraphNodeCodec{}
	aAddr = NewNodeAddr(0, 0)
	bAddr = NewNodeAddr(codec.EncodedSize(1), 1)
	var buf bytes.Buffer
	buf.Write(codec.EncodeNode(1, []NodeAddr{bAddr}))
	buf.Write(codec.EncodeNode(2, []NodeAddr{aAddr}))
	return buf.Bytes(), aAddr, bAddr
}

func TestResolveCachesSecondLookup(t *testing.T) {
	codec := GraphNodeCodec{}
	reader := newTestReader(codec.EncodeNode(42, nil))
	reg := NewNodeRegistry[GraphNode](Config{}, reader)
	addr := NewNodeAddr(0, 0)

	n1, err := reg.ResolveNode(addr, codec.DecodeNode, 5)
	require.NoError(t, err)
	require.True(t, n1.IsResolved())
	require.Equal(t, uint16(0), n1.Version())
	require.Equal(t, uint64(42), n1.Data().Value)
	ops := reader.ops()

	n2, err := reg.ResolveNode(addr, codec.DecodeNode, 5)
	require.NoError(t, err)
	require.Same(t, n1, n2)
	require.Equal(t, ops, reader.ops())
	require.Equal(t, 1, reg.Len())

	stat := reg.Stat()
	require.Equal(t, uint64(1), stat.CacheHit)
	require.Equal(t, uint64(1), stat.LoadCount)
}

func TestResolveZeroBudgetPlaceholder(t *testing.T) {
	codec := GraphNodeCodec{}
	reader := newTestReader(codec.EncodeNode(42, nil))
	reg := NewNodeRegistry[GraphNode](Config{}, reader)
	addr := NewNodeAddr(0, 3)

	n, err := reg.Resolve(addr, reader, codec.DecodeNode, 0, NewVisitSet())
	require.NoError(t, err)
	require.False(t, n.IsResolved())
	require.Equal(t, addr, n.Addr())
	require.Equal(t, uint16(3), n.Version())
	require.True(t, n.NeedsFlush())
	require.Equal(t, uint32(0), n.DecayCount())
	require.Equal(t, 0, reader.ops())
	require.Equal(t, 0, reg.Len())
	require.Equal(t, uint64(1), reg.Stat().CycleBreak)
}

func TestResolveBreaksCycle(t *testing.T) {
	dat, aAddr, bAddr := buildCycle()
	codec := GraphNodeCodec{}
	reader := newTestReader(dat)
	reg := NewNodeRegistry[GraphNode](Config{}, reader)

	a, err := reg.ResolveNode(aAddr, codec.DecodeNode, 10)
	require.NoError(t, err)
	require.True(t, a.IsResolved())
	require.Equal(t, uint64(1), a.Data().Value)

	b := a.Data().Neighbors[0]
	require.True(t, b.IsResolved())
	require.Equal(t, bAddr, b.Addr())
	require.Equal(t, uint64(2), b.Data().Value)

	// the back reference to a was cut by the visiting set
	back := b.Data().Neighbors[0]
	require.False(t, back.IsResolved())
	require.Equal(t, aAddr, back.Addr())

	require.Equal(t, 2, reg.Len())
	require.Equal(t, uint64(1), reg.Stat().CycleBreak)
}

func TestResolveDepthBudget(t *testing.T) {
	// chain: root -> mid -> leaf, budget only covers root and mid
	codec := GraphNodeCodec{}
	rootAddr := NewNodeAddr(0, 0)
	midAddr := NewNodeAddr(codec.EncodedSize(1), 0)
	leafAddr := NewNodeAddr(midAddr.Offset+codec.EncodedSize(1), 0)
	var buf bytes.Buffer
	buf.Write(codec.EncodeNode(1, []NodeAddr{midAddr}))
	buf.Write(codec.EncodeNode(2, []NodeAddr{leafAddr}))
	buf.Write(codec.EncodeNode(3, nil))

	reg := NewNodeRegistry[GraphNode](Config{}, newTestReader(buf.Bytes()))
	root, err := reg.ResolveNode(rootAddr, codec.DecodeNode, 2)
	require.NoError(t, err)
	mid := root.Data().Neighbors[0]
	require.True(t, mid.IsResolved())
	leaf := mid.Data().Neighbors[0]
	require.False(t, leaf.IsResolved())
	require.Equal(t, leafAddr, leaf.Addr())
}

func TestConcurrentResolveSameAddr(t *testing.T) {
	codec := GraphNodeCodec{}
	dat := codec.EncodeNode(77, nil)
	reg := NewNodeRegistry[GraphNode](Config{}, newTestReader(dat))
	addr := NewNodeAddr(0, 0)

	const workers = 8
	var wg sync.WaitGroup
	nodes := make([]*LazyNode[GraphNode], workers)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			// every worker brings its own reader, as the protocol allows
			n, err := reg.Resolve(addr, newTestReader(dat), codec.DecodeNode, 5, NewVisitSet())
			require.NoError(t, err)
			nodes[i] = n
		}(i)
	}
	wg.Wait()

	for _, n := range nodes {
		require.True(t, n.IsResolved())
		require.Equal(t, uint64(77), n.Data().Value)
	}
	require.Equal(t, 1, reg.Len())
	_, ok := reg.Get(addr)
	require.True(t, ok)
}

func TestLoadInvalidAddr(t *testing.T) {
	codec := GraphNodeCodec{}
	reader := newTestReader(codec.EncodeNode(1, nil))
	reg := NewNodeRegistry[GraphNode](Config{}, reader)

	_, err := reg.Load(NodeAddr{}, codec)
	require.ErrorIs(t, err, ErrInvalidAddr)
	_, err = reg.ResolveNode(NodeAddr{}, codec.DecodeNode, 5)
	require.ErrorIs(t, err, ErrInvalidAddr)

	require.Equal(t, 0, reader.ops())
	require.Equal(t, 0, reg.Len())
	require.Equal(t, ExportStat{}, reg.Stat())
}

func TestLoadRootNotCached(t *testing.T) {
	codec := GraphNodeCodec{}
	childAddr := NewNodeAddr(codec.EncodedSize(1), 2)
	var buf bytes.Buffer
	buf.Write(codec.EncodeNode(5, []NodeAddr{childAddr}))
	buf.Write(codec.EncodeNode(6, nil))
	reg := NewNodeRegistry[GraphNode](Config{}, newTestReader(buf.Bytes()))

	root, err := reg.Load(NewNodeAddr(0, 0), codec)
	require.NoError(t, err)
	require.Equal(t, uint64(5), root.Value)

	// only the nested reference lands in the cache
	require.Equal(t, 1, reg.Len())
	child, ok := reg.Get(childAddr)
	require.True(t, ok)
	require.Same(t, root.Neighbors[0], child)
	require.Equal(t, uint16(2), child.Version())
}

func TestResolveDistinctAddrs(t *testing.T) {
	codec := GraphNodeCodec{}
	dat := make([]byte, 64)
	copy(dat, codec.EncodeNode(1, nil))
	dat = append(dat, codec.EncodeNode(2, nil)...)
	reg := NewNodeRegistry[GraphNode](Config{}, newTestReader(dat))

	a, err := reg.ResolveNode(NewNodeAddr(0, 0), codec.DecodeNode, 5)
	require.NoError(t, err)
	b, err := reg.ResolveNode(NewNodeAddr(64, 1), codec.DecodeNode, 5)
	require.NoError(t, err)
	require.NotSame(t, a, b)
	require.Equal(t, uint64(1), a.Data().Value)
	require.Equal(t, uint64(2), b.Data().Value)
	require.Equal(t, 2, reg.Len())
}

func TestLenCountsNonZeroOffsets(t *testing.T) {
	// no record sits at offset 0, so the count must not depend on any
	// particular key being present
	codec := GraphNodeCodec{}
	dat := make([]byte, 32)
	dat = append(dat, codec.EncodeNode(1, nil)...)
	dat = append(dat, make([]byte, 6)...)
	dat = append(dat, codec.EncodeNode(2, nil)...)
	reg := NewNodeRegistry[GraphNode](Config{}, newTestReader(dat))

	a, err := reg.ResolveNode(NewNodeAddr(32, 0), codec.DecodeNode, 5)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())
	b, err := reg.ResolveNode(NewNodeAddr(48, 1), codec.DecodeNode, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(1), a.Data().Value)
	require.Equal(t, uint64(2), b.Data().Value)
	require.Equal(t, 2, reg.Len())

	a2, err := reg.ResolveNode(NewNodeAddr(32, 0), codec.DecodeNode, 5)
	require.NoError(t, err)
	require.Same(t, a, a2)
	require.Equal(t, 2, reg.Len())
}

func TestFilterSaturationKeepsMapAuthoritative(t *testing.T) {
	codec := GraphNodeCodec{}
	const records = 64
	recordSize := codec.EncodedSize(0)
	var dat []byte
	for i := 0; i < records; i++ {
		dat = append(dat, codec.EncodeNode(uint64(i), nil)...)
	}
	reg := NewNodeRegistry[GraphNode](Config{FilterCapacity: 1}, newTestReader(dat))

	addrs := make([]NodeAddr, records)
	for i := 0; i < records; i++ {
		addrs[i] = NewNodeAddr(uint32(i)*recordSize, 0)
		n, err := reg.ResolveNode(addrs[i], codec.DecodeNode, 5)
		require.NoError(t, err)
		require.Equal(t, uint64(i), n.Data().Value)
	}
	require.Equal(t, records, reg.Len())
	require.Greater(t, reg.Stat().FilterInsertFail, uint64(0))

	// a saturated filter only costs extra loads; the map stays the source
	// of truth and every address keeps its canonical handle
	for i := 0; i < records; i++ {
		n, err := reg.ResolveNode(addrs[i], codec.DecodeNode, 5)
		require.NoError(t, err)
		canonical, ok := reg.Get(addrs[i])
		require.True(t, ok)
		require.Same(t, canonical, n)
	}
	require.Equal(t, records, reg.Len())
}

func TestResolveTruncatedRecord(t *testing.T) {
	codec := GraphNodeCodec{}
	dat := codec.EncodeNode(1, []NodeAddr{NewNodeAddr(999, 0)})
	reg := NewNodeRegistry[GraphNode](Config{}, newTestReader(dat))

	// the neighbor points past the end of the file; the decode error must
	// abort the whole chain and nothing may be cached
	_, err := reg.ResolveNode(NewNodeAddr(0, 0), codec.DecodeNode, 5)
	require.Error(t, err)
	require.Equal(t, 0, reg.Len())
}
