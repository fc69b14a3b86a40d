package avlreg

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRollbackAfterEvictionAbort implements spec §8 scenario 6: open with a
// cache small enough to force eviction, autosave off, and drive enough
// writes that an eviction has to reclaim a dirty, unpinned frame mid-insert.
// That must fail with KindAbort, and afterward the store must report the
// same state as the last commit.
func TestRollbackAfterEvictionAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reg.db")

	r, err := Open(Options{
		Path:              path,
		Flags:             FlagReadWrite | FlagCreate,
		CacheSizeKB:       64,
		RowItems:          1,
		DefaultComparator: rawCompare,
	})
	require.NoError(t, err)
	defer r.Close()

	seed, err := r.CreateKey(0, []byte("seed"), nil)
	require.NoError(t, err)
	require.NoError(t, r.Commit(true))

	// Chain nested keys: each new depth level lands in a fresh page-pool
	// bucket, so each create allocates a brand new data page. With only a
	// handful of single-item cache rows, collisions that require evicting
	// an earlier dirty, unpinned page are forced quickly.
	parent := seed
	var abortErr error
	for i := 0; i < 128; i++ {
		var cerr error
		parent, cerr = r.CreateKey(parent, []byte(fmt.Sprintf("d%d", i)), nil)
		if cerr != nil {
			abortErr = cerr
			break
		}
	}
	require.Error(t, abortErr, "expected eviction of a dirty unpinned page to eventually be required")
	require.Equal(t, KindAbort, KindOf(abortErr))

	// The database reports the same state as the last commit: "seed"
	// exists and has no children yet.
	found, err := r.Find(0, []byte("seed"), Keys, nil)
	require.NoError(t, err)
	require.Equal(t, seed, found)

	_, err = r.Find(seed, []byte("d0"), Keys, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

// TestPageCacheReturnsStableFrameAcrossLookups checks the ordering
// guarantee that a lookup for an already-resident offset returns the same
// frame, and that pin/unpin nests correctly.
func TestPageCacheReturnsStableFrameAcrossLookups(t *testing.T) {
	r := openTestRegistry(t, Options{})

	parent, err := r.CreateKey(0, []byte("p"), nil)
	require.NoError(t, err)
	pageOff, _ := splitRef(parent)

	f1, err := r.cache.acquire(pageOff, false)
	require.NoError(t, err)
	f2, err := r.cache.acquire(pageOff, false)
	require.NoError(t, err)
	require.Same(t, f1, f2, "repeated acquire of a resident offset must return the same frame")

	r.unpinFrame(f1)
	r.unpinFrame(f2)
}

// TestEvictionSkipsPinnedFrames ensures a pinned frame is never chosen as
// an eviction victim, by pinning one page and forcing enough new page
// allocations into its row to exhaust available slots.
func TestEvictionSkipsPinnedFrames(t *testing.T) {
	r, err := Open(Options{
		Path:              filepath.Join(t.TempDir(), "reg.db"),
		Flags:             FlagReadWrite | FlagCreate,
		CacheSizeKB:       64,
		RowItems:          1,
		DefaultComparator: rawCompare,
	})
	require.NoError(t, err)
	defer r.Close()

	seed, err := r.CreateKey(0, []byte("seed"), nil)
	require.NoError(t, err)
	require.NoError(t, r.Commit(true))

	pageOff, _ := splitRef(seed)
	pinned, err := r.cache.acquire(pageOff, false)
	require.NoError(t, err)
	defer r.unpinFrame(pinned)

	// Allocate a handful of fresh pages; none of them may reuse the pinned
	// frame regardless of which row they hash into.
	parent := seed
	for i := 0; i < 8; i++ {
		var cerr error
		parent, cerr = r.CreateKey(parent, []byte(fmt.Sprintf("k%d", i)), nil)
		if cerr != nil {
			require.Equal(t, KindAbort, KindOf(cerr))
			break
		}
		require.EqualValues(t, 1, pinned.pinCount, "pinned frame's pin count must never change due to unrelated allocations")
	}
}
