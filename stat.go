package lodestore

import "sync/atomic"

// ExportStat is a point-in-time snapshot of the registry counters.
type ExportStat struct {
	CacheHit            uint64
	CacheMis            uint64
	FilterFalsePositive uint64
	FilterInsertFail    uint64
	LoadCount           uint64
	DupLoad             uint64
	CycleBreak          uint64
}

type iStat struct {
	cacheHit            atomic.Uint64
	cacheMis            atomic.Uint64
	filterFalsePositive atomic.Uint64
	filterInsertFail    atomic.Uint64
	loadCount           atomic.Uint64
	dupLoad             atomic.Uint64
	cycleBreak          atomic.Uint64
}

func (s *iStat) export() ExportStat {
	return ExportStat{
		CacheHit:            s.cacheHit.Load(),
		CacheMis:            s.cacheMis.Load(),
		FilterFalsePositive: s.filterFalsePositive.Load(),
		FilterInsertFail:    s.filterInsertFail.Load(),
		LoadCount:           s.loadCount.Load(),
		DupLoad:             s.dupLoad.Load(),
		CycleBreak:          s.cycleBreak.Load(),
	}
}
