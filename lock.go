package avlreg

import "context"

// The database-wide upgradable read/write lock (spec §4.7) is built on
// golang.org/x/sync/semaphore.Weighted, sized to dbLockTokens: a reader
// acquires 1 token, an exclusive writer acquires every token, so a writer
// can only proceed once every reader has released. golang.org/x/sync is
// already in the pack's dependency surface (hanwen-go-fuse). There is no
// cancellation in this spec (§5 "Cancellation: None"), so every call uses
// context.Background(), which Acquire only consults for cancellation, never
// for timing out on its own.

func (l *dbLock) lockShared() {
	_ = l.sem.Acquire(context.Background(), 1)
}

func (l *dbLock) unlockShared() {
	l.sem.Release(1)
}

func (l *dbLock) lockExclusive() {
	_ = l.sem.Acquire(context.Background(), l.tokens)
}

func (l *dbLock) unlockExclusive() {
	l.sem.Release(l.tokens)
}

// tryUpgrade releases the caller's held shared token and attempts a
// non-blocking acquire of every token. It always releases the shared hold,
// whether or not the upgrade succeeds — on failure the caller has no lock
// at all and must restart the operation from lockShared (spec §4.7 "on
// upgrade failure it restarts the whole operation").
func (l *dbLock) tryUpgrade() bool {
	l.unlockShared()
	return l.sem.TryAcquire(l.tokens)
}

// withShared runs fn under the shared (reader) lock.
func (r *Registry) withShared(fn func() error) error {
	r.lock.lockShared()
	defer r.lock.unlockShared()
	return fn()
}

// withExclusive runs fn under the exclusive (writer) lock, rolling back on
// any error fn returns (spec §7 "rollback runs on every write-path failure
// before the lock is released").
func (r *Registry) withExclusive(fn func() error) error {
	r.lock.lockExclusive()
	defer r.lock.unlockExclusive()
	if err := fn(); err != nil {
		r.rollback()
		return err
	}
	return nil
}
