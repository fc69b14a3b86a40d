package avlreg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func seedCursorKeys(t *testing.T, r *Registry, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := r.CreateKey(0, []byte(n), nil)
		require.NoError(t, err)
	}
}

func drainCursor(t *testing.T, r *Registry, c *Cursor, first Offset) []string {
	t.Helper()
	var got []string
	for node := first; node != 0; {
		name, err := r.GetName(node)
		require.NoError(t, err)
		got = append(got, name)
		next, err := r.InorderNext(c)
		if err != nil {
			require.ErrorIs(t, err, ErrNotFound)
			break
		}
		node = next
	}
	return got
}

func TestCursorAscendingFromEmptyTree(t *testing.T) {
	r := openTestRegistry(t, Options{})
	_, first, err := r.InorderFirst(0, nil, Keys, Ascending, nil)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, Offset(0), first)
}

func TestCursorAscendingVisitsSortedOrder(t *testing.T) {
	r := openTestRegistry(t, Options{})
	seedCursorKeys(t, r, "banana", "apple", "cherry", "date")

	c, first, err := r.InorderFirst(0, nil, Keys, Ascending, nil)
	require.NoError(t, err)
	got := drainCursor(t, r, c, first)
	require.Equal(t, []string{"apple", "banana", "cherry", "date"}, got)
}

func TestCursorDescendingReversesOrder(t *testing.T) {
	r := openTestRegistry(t, Options{})
	seedCursorKeys(t, r, "banana", "apple", "cherry", "date")

	c, first, err := r.InorderFirst(0, nil, Keys, Descending, nil)
	require.NoError(t, err)
	got := drainCursor(t, r, c, first)
	require.Equal(t, []string{"date", "cherry", "banana", "apple"}, got)
}

func TestCursorSeekEqualKey(t *testing.T) {
	r := openTestRegistry(t, Options{})
	seedCursorKeys(t, r, "b", "d", "f", "h")

	c, first, err := r.InorderFirst(0, []byte("f"), Keys, Ascending, nil)
	require.NoError(t, err)
	got := drainCursor(t, r, c, first)
	require.Equal(t, []string{"f", "h"}, got)
}

func TestCursorSeekAscendingGreaterThanMissingKey(t *testing.T) {
	r := openTestRegistry(t, Options{})
	seedCursorKeys(t, r, "b", "d", "f", "h")

	// "e" isn't present; ascending seek lands on the smallest key greater
	// than it ("f").
	c, first, err := r.InorderFirst(0, []byte("e"), Keys, Ascending, nil)
	require.NoError(t, err)
	got := drainCursor(t, r, c, first)
	require.Equal(t, []string{"f", "h"}, got)
}

func TestCursorSeekDescendingLessThanMissingKey(t *testing.T) {
	r := openTestRegistry(t, Options{})
	seedCursorKeys(t, r, "b", "d", "f", "h")

	// "e" isn't present; descending seek lands on the largest key smaller
	// than it ("d").
	c, first, err := r.InorderFirst(0, []byte("e"), Keys, Descending, nil)
	require.NoError(t, err)
	got := drainCursor(t, r, c, first)
	require.Equal(t, []string{"d", "b"}, got)
}

func TestCursorOverValuesTree(t *testing.T) {
	r := openTestRegistry(t, Options{})
	appKey, err := r.CreateKey(0, []byte("app"), nil)
	require.NoError(t, err)

	_, err = r.CreateInt32(appKey, []byte("retries"), 3, nil)
	require.NoError(t, err)
	_, err = r.CreateString(appKey, []byte("version"), "0.1.0", nil)
	require.NoError(t, err)
	_, err = r.CreateDouble(appKey, []byte("timeout"), 1.5, nil)
	require.NoError(t, err)

	c, first, err := r.InorderFirst(appKey, nil, Values, Ascending, nil)
	require.NoError(t, err)
	got := drainCursor(t, r, c, first)
	require.Equal(t, []string{"retries", "timeout", "version"}, got)
}
