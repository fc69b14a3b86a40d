package avlreg

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// defaultComparator orders node names with a locale-aware collator
// (golang.org/x/text/collate, already in the pack's dependency surface via
// joshuapare-hivekit and TomTonic-multimap) rather than a raw byte
// comparison, so registries opened without an explicit Comparator still get
// sensible ordering for human-readable names. Callers needing byte-exact
// ordering (e.g. to match another implementation bit-for-bit) should pass
// their own Comparator at the call site, per spec §4.4 "Tie-breaks and
// policy".
func defaultComparator() Comparator {
	col := collate.New(language.Und)
	return func(a, b []byte) int {
		return col.Compare(a, b)
	}
}

// comparatorFor resolves the comparator an operation should use: the one
// supplied at the call site, else the registry's default.
func (r *Registry) comparatorFor(cmp Comparator) Comparator {
	if cmp != nil {
		return cmp
	}
	return r.defaultCmp
}
