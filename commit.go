package avlreg

import "sync/atomic"

// Commit walks the cache writing every dirty page, writes the header last,
// optionally flushes, and snapshots the header into the shadow copy (spec
// §4.6). Commit is a write operation: it acquires the database-wide
// exclusive lock itself.
func (r *Registry) Commit(flush bool) error {
	return r.withExclusive(func() error {
		return r.commitLocked(flush)
	})
}

func (r *Registry) commitLocked(flush bool) error {
	err := r.cache.forEachFrame(func(f *cachedFrame) error {
		if !f.dirty || f.fileOffset == 0 {
			return nil
		}
		if err := r.cache.flushFrame(f); err != nil {
			f.dirty = true
			return wrapErr(KindIOError, "commit: writeback dirty page", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.headerMu.Lock()
	r.setPageChecksumField(r.header, 0)
	sum := pageChecksum(r.header)
	r.setPageChecksumField(r.header, sum)
	if err := r.fileIO.WriteAt(r.header, 0); err != nil {
		r.headerMu.Unlock()
		return wrapErr(KindIOError, "commit: write header", err)
	}
	r.headerMu.Unlock()

	if flush {
		if err := r.fileIO.Flush(); err != nil {
			return wrapErr(KindIOError, "commit: fsync", err)
		}
	}

	r.headerMu.Lock()
	copy(r.shadowHeader, r.header)
	r.headerMu.Unlock()

	if r.metrics != nil {
		r.metrics.commits.Inc()
	}
	return nil
}

// rollback restores the last committed view after a failed write-path
// operation (spec §4.6). It is called by withExclusive whenever the
// wrapped function returns an error, and assumes the exclusive lock is
// already held by the caller.
func (r *Registry) rollback() {
	_ = r.cache.forEachFrame(func(f *cachedFrame) error {
		if f.dirty && f.fileOffset != 0 {
			f.fileOffset = 0
			f.dirty = false
			atomic.StoreInt32(&f.pinCount, 0)
		}
		return nil
	})

	r.headerMu.Lock()
	copy(r.header, r.shadowHeader)
	r.headerMu.Unlock()

	if r.metrics != nil {
		r.metrics.rollbacks.Inc()
	}
}
