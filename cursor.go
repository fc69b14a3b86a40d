package avlreg

// Cursor is the in-order cursor of spec §4.5: an explicit stack of up to
// AVLMaxHeight node offsets plus a direction and set-kind selection. It
// holds no pins between calls — First/Next each pin only the pages they
// touch and unpin before returning, per "Concurrency stance".
type Cursor struct {
	r     *Registry
	stack []Offset
	kind  SetKind
	dir   Direction
}

// NewCursor creates a cursor over parent's children (kind == Keys) or
// values (kind == Values), walking in dir order. Call First to position it
// before the first Next.
func (r *Registry) NewCursor(kind SetKind, dir Direction) *Cursor {
	return &Cursor{r: r, kind: kind, dir: dir}
}

func (c *Cursor) rootFor(parent Offset) (Offset, error) {
	if parent == 0 {
		if c.kind == Values {
			return 0, nil
		}
		return c.r.hdrChildrenRoot(), nil
	}
	f, off, err := c.r.pinRef(parent)
	if err != nil {
		return 0, err
	}
	defer c.r.unpinFrame(f)
	if c.kind == Keys {
		return keyChildrenRoot(c.r, f.data, off), nil
	}
	return keyValuesRoot(c.r, f.data, off), nil
}

// First positions the cursor (spec §4.5 "first"). key == nil positions at
// the smallest (Ascending) or largest (Descending) node. A non-nil key
// seeks to the equal node if present, else the smallest node greater
// (Ascending) or largest node smaller (Descending).
func (c *Cursor) First(parent Offset, key []byte, cmp Comparator) error {
	root, err := c.rootFor(parent)
	if err != nil {
		return err
	}
	cmp = c.r.comparatorFor(cmp)
	c.stack = c.stack[:0]

	cur := root
	for cur != 0 {
		if len(c.stack) >= AVLMaxHeight {
			return newErr(KindInternal, "cursor stack overflow")
		}
		f, off, err := c.r.pinRef(cur)
		if err != nil {
			return err
		}
		left := nodeLeft(c.r, f.data, off)
		right := nodeRight(c.r, f.data, off)
		var name []byte
		if key != nil {
			name = append([]byte(nil), nodeName(c.r, f.data, off)...)
		}
		c.r.unpinFrame(f)

		if key == nil {
			c.stack = append(c.stack, cur)
			if c.dir == Ascending {
				cur = left
			} else {
				cur = right
			}
			continue
		}

		cmpResult := cmp(key, name)
		switch {
		case cmpResult == 0:
			c.stack = append(c.stack, cur)
			cur = 0
		case c.dir == Ascending && cmpResult < 0:
			c.stack = append(c.stack, cur)
			cur = left
		case c.dir == Ascending:
			cur = right
		case c.dir == Descending && cmpResult > 0:
			c.stack = append(c.stack, cur)
			cur = right
		default:
			cur = left
		}
	}
	return nil
}

// Next pops and returns the next node in order, pushing the in-order
// successors of its "next-direction" child on the way (spec §4.5 "next").
// Returns ErrNotFound once the stack empties.
func (c *Cursor) Next() (Offset, error) {
	if len(c.stack) == 0 {
		return 0, ErrNotFound
	}
	top := len(c.stack) - 1
	cur := c.stack[top]
	c.stack = c.stack[:top]

	f, off, err := c.r.pinRef(cur)
	if err != nil {
		return 0, err
	}
	var child Offset
	if c.dir == Ascending {
		child = nodeRight(c.r, f.data, off)
	} else {
		child = nodeLeft(c.r, f.data, off)
	}
	c.r.unpinFrame(f)

	for child != 0 {
		if len(c.stack) >= AVLMaxHeight {
			return 0, newErr(KindInternal, "cursor stack overflow")
		}
		c.stack = append(c.stack, child)
		f, off, err := c.r.pinRef(child)
		if err != nil {
			return 0, err
		}
		var next Offset
		if c.dir == Ascending {
			next = nodeLeft(c.r, f.data, off)
		} else {
			next = nodeRight(c.r, f.data, off)
		}
		c.r.unpinFrame(f)
		child = next
	}
	return cur, nil
}
