package avlreg

import (
	"bytes"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// checkAVLInvariant walks the subtree rooted at ref, asserting that every
// node's stored balance factor equals height(right)-height(left) and that
// the two subtree heights never differ by more than one (spec §3 Invariant
// 4). Returns the subtree height.
func checkAVLInvariant(t *testing.T, r *Registry, ref Offset) int {
	t.Helper()
	if ref == 0 {
		return 0
	}
	f, off, err := r.pinRef(ref)
	require.NoError(t, err)
	left := nodeLeft(r, f.data, off)
	right := nodeRight(r, f.data, off)
	bf := nodeBF(r, f.data, off)
	r.unpinFrame(f)

	lh := checkAVLInvariant(t, r, left)
	rh := checkAVLInvariant(t, r, right)

	require.LessOrEqual(t, abs(rh-lh), 1, "height imbalance at ref %d", ref)
	require.Equal(t, int8(rh-lh), bf, "stored balance factor wrong at ref %d", ref)

	if rh > lh {
		return rh + 1
	}
	return lh + 1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func openTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "reg.db")
	}
	if opts.Flags == 0 {
		opts.Flags = FlagReadWrite | FlagCreate
	}
	if opts.DefaultComparator == nil {
		opts.DefaultComparator = bytes.Compare
	}
	r, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// TestAVLRotationCases exercises all four single/double rotation shapes by
// inserting small, deliberately ordered sequences of keys under the root.
func TestAVLRotationCases(t *testing.T) {
	cases := []struct {
		name  string
		order []string
	}{
		{"RR", []string{"a", "b", "c"}},
		{"LL", []string{"c", "b", "a"}},
		{"LR", []string{"c", "a", "b"}},
		{"RL", []string{"a", "c", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := openTestRegistry(t, Options{})
			for _, name := range tc.order {
				_, err := r.CreateKey(0, []byte(name), nil)
				require.NoError(t, err)
			}
			checkAVLInvariant(t, r, r.hdrChildrenRoot())
		})
	}
}

// TestAVLStressInsertion implements spec §8 scenario 3: insert 1000 keys
// named as the decimal of a random permutation of 0..999 under the root,
// checking the balance-factor invariant every 100 insertions, then
// confirming an in-order walk visits them in lexicographic order.
func TestAVLStressInsertion(t *testing.T) {
	r := openTestRegistry(t, Options{})

	perm := rand.New(rand.NewSource(42)).Perm(1000)
	for i, v := range perm {
		_, err := r.CreateKey(0, []byte(fmt.Sprintf("%d", v)), nil)
		require.NoError(t, err)
		if (i+1)%100 == 0 {
			height := checkAVLInvariant(t, r, r.hdrChildrenRoot())
			require.LessOrEqual(t, height, AVLMaxHeight)
		}
	}
	checkAVLInvariant(t, r, r.hdrChildrenRoot())

	var want []string
	for v := 0; v < 1000; v++ {
		want = append(want, fmt.Sprintf("%d", v))
	}
	sort.Strings(want)

	c, first, err := r.InorderFirst(0, nil, Keys, Ascending, nil)
	require.NoError(t, err)
	var got []string
	for node := first; node != 0; {
		name, err := r.GetName(node)
		require.NoError(t, err)
		got = append(got, name)
		node, err = r.InorderNext(c)
		if err != nil {
			require.ErrorIs(t, err, ErrNotFound)
			break
		}
	}
	require.Equal(t, want, got)
}

// TestAVLDeleteRebalances deletes keys out of a moderately sized tree and
// checks the invariant holds after every deletion, including the
// two-children splice case.
func TestAVLDeleteRebalances(t *testing.T) {
	r := openTestRegistry(t, Options{})

	var names []string
	for v := 0; v < 200; v++ {
		name := fmt.Sprintf("%03d", v)
		names = append(names, name)
		_, err := r.CreateKey(0, []byte(name), nil)
		require.NoError(t, err)
	}
	checkAVLInvariant(t, r, r.hdrChildrenRoot())

	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	for i, name := range names {
		require.NoError(t, r.Delete(0, []byte(name), Keys, nil))
		if (i+1)%25 == 0 {
			checkAVLInvariant(t, r, r.hdrChildrenRoot())
		}
	}
	require.Equal(t, Offset(0), r.hdrChildrenRoot())
}
