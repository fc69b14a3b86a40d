package avlreg

import (
	"sync"
	"sync/atomic"
)

// cachedFrame is one cache slot: a page frame plus the bookkeeping the
// lookup/demand-load protocol needs (spec §4.2 "State per item").
// fileOffset == 0 means the slot is "available": it carries an allocated
// frame that currently maps no file page.
type cachedFrame struct {
	pinCount   int32 // atomic
	dirty      bool  // set under the database exclusive lock; cleared by commit, rollback or an eviction writeback
	fileOffset Offset
	loadTime   uint64
	data       page
}

// cacheRow is one set-associative row: a linear-scanned slice of frames
// guarded by an upgradable reader/writer lock. Go's sync.RWMutex has no
// true try-upgrade; this implementation models the spec's "attempt upgrade,
// on failure release and retry" step as an unconditional RUnlock+Lock
// (an upgrade that always eventually succeeds), re-scanning under the write
// lock exactly as step 5 requires for correctness under the race.
type cacheRow struct {
	mu        sync.RWMutex
	items     []*cachedFrame
	loadCount uint64
}

// pageCache is the two-level set-associative cache: R rows of C items
// (spec §4.2). Row index is a hashed function of the page offset so
// adjacent offsets scatter across rows.
type pageCache struct {
	rows     []*cacheRow
	rowMask  uint64
	rowItems int

	pool     *bufferPool
	io       fileIO
	registry *Registry
	autosave bool
	metrics  *storeMetrics
}

const cacheRowGrowth = 4
const rowHashMultiplier = 1597334677

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func newPageCache(r *Registry, cacheKB, rowItems int, io fileIO) *pageCache {
	if cacheKB < 64 {
		cacheKB = 64
	}
	if rowItems <= 0 {
		rowItems = DefaultRowItems
	}
	pageKB := PageSize / 1024
	rows := cacheKB / (pageKB * rowItems)
	if rows < 1 {
		rows = 1
	}
	rows = nextPow2(rows)

	c := &pageCache{
		rows:     make([]*cacheRow, rows),
		rowMask:  uint64(rows - 1),
		rowItems: rowItems,
		pool:     r.pool,
		io:       io,
		registry: r,
		autosave: r.autosave,
		metrics:  r.metrics,
	}
	for i := range c.rows {
		c.rows[i] = newCacheRow(c, rowItems)
	}
	return c
}

func newCacheRow(c *pageCache, n int) *cacheRow {
	row := &cacheRow{items: make([]*cachedFrame, 0, n)}
	growRow(c, row, n)
	return row
}

// growRow appends n freshly allocated, available frames to row. Caller must
// hold row.mu for writing, except during construction.
func growRow(c *pageCache, row *cacheRow, n int) error {
	for i := 0; i < n; i++ {
		buf, err := c.pool.allocPage()
		if err != nil {
			return err
		}
		row.items = append(row.items, &cachedFrame{data: page(buf)})
	}
	return nil
}

func (c *pageCache) rowFor(offset Offset) *cacheRow {
	h := (uint64(offset) / PageSize * rowHashMultiplier) >> 3
	return c.rows[h&c.rowMask]
}

// acquire implements the lookup/demand-load protocol (spec §4.2). isNew
// selects zero-fill-and-map (a freshly allocated page) versus read-and-
// verify (an existing on-disk page).
func (c *pageCache) acquire(offset Offset, isNew bool) (*cachedFrame, error) {
	row := c.rowFor(offset)

	row.mu.RLock()
	if f := scanRow(row, offset); f != nil {
		atomic.AddInt32(&f.pinCount, 1)
		row.mu.RUnlock()
		return f, nil
	}
	row.mu.RUnlock()

	row.mu.Lock()
	defer row.mu.Unlock()

	if f := scanRow(row, offset); f != nil {
		atomic.AddInt32(&f.pinCount, 1)
		return f, nil
	}

	f, err := c.claimOrEvict(row)
	if err != nil {
		return nil, err
	}

	if isNew {
		for i := range f.data {
			f.data[i] = 0
		}
		f.fileOffset = offset
		f.loadTime = 0
		c.registry.setPageSelfOffset(f.data, offset)
	} else {
		if err := c.io.ReadAt(f.data, int64(offset)); err != nil {
			f.fileOffset = 0
			return nil, err
		}
		stored := c.registry.pageChecksumField(f.data)
		if pageChecksum(f.data) != stored {
			f.fileOffset = 0
			return nil, newErr(KindCorrupt, "page checksum mismatch")
		}
		f.fileOffset = offset
		f.loadTime = row.loadCount
		row.loadCount++
	}

	atomic.StoreInt32(&f.pinCount, 1)
	if c.metrics != nil {
		if isNew {
			c.metrics.pagesAllocated.Inc()
		} else {
			c.metrics.cacheMisses.Inc()
		}
	}
	return f, nil
}

func scanRow(row *cacheRow, offset Offset) *cachedFrame {
	for _, f := range row.items {
		if f.fileOffset == offset {
			return f
		}
	}
	return nil
}

// claimOrEvict returns an available frame from row, claiming an unmapped
// slot, evicting the least-recently-loaded unpinned slot, or growing the
// row when nothing is evictable (spec §4.2 steps 6-7). Caller holds
// row.mu for writing.
func (c *pageCache) claimOrEvict(row *cacheRow) (*cachedFrame, error) {
	for _, f := range row.items {
		if f.fileOffset == 0 && atomic.LoadInt32(&f.pinCount) == 0 {
			return f, nil
		}
	}

	var victim *cachedFrame
	for _, f := range row.items {
		if atomic.LoadInt32(&f.pinCount) != 0 {
			continue
		}
		if victim == nil || f.loadTime < victim.loadTime {
			victim = f
		}
	}

	if victim == nil {
		if err := growRow(c, row, cacheRowGrowth); err != nil {
			return nil, wrapErr(KindNoMem, "grow cache row", err)
		}
		return row.items[len(row.items)-cacheRowGrowth], nil
	}

	if victim.dirty {
		if !c.autosave {
			return nil, newErr(KindAbort, "must flush dirty page but autosave is off")
		}
		if err := c.flushFrame(victim); err != nil {
			return nil, err
		}
	}

	victim.fileOffset = 0
	return victim, nil
}

// flushFrame recomputes the checksum and writes a dirty frame positionally,
// clearing the dirty bit on success (spec §4.2 eviction writeback, §4.6
// commit step 1 reuses the same sequence).
func (c *pageCache) flushFrame(f *cachedFrame) error {
	c.registry.setPageChecksumField(f.data, 0)
	sum := pageChecksum(f.data)
	c.registry.setPageChecksumField(f.data, sum)
	if err := c.io.WriteAt(f.data, int64(f.fileOffset)); err != nil {
		return err
	}
	f.dirty = false
	if c.metrics != nil {
		c.metrics.dirtyWritebacks.Inc()
	}
	return nil
}

func unpin(f *cachedFrame) {
	atomic.AddInt32(&f.pinCount, -1)
}

func markDirty(f *cachedFrame) {
	f.dirty = true
}

// forEachFrame calls fn for every frame in every row, holding each row's
// write lock for the duration of that row's callbacks. Used by commit and
// rollback, which need to mutate dirty bits and fileOffset fields.
func (c *pageCache) forEachFrame(fn func(f *cachedFrame) error) error {
	for _, row := range c.rows {
		row.mu.Lock()
		for _, f := range row.items {
			if err := fn(f); err != nil {
				row.mu.Unlock()
				return err
			}
		}
		row.mu.Unlock()
	}
	return nil
}
