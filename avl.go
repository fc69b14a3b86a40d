package avlreg

// avl.go implements the tree operator of spec §4.4: search with an explicit
// back-trace stack, insertion with balance-up-after-insert, and deletion
// with balance-up-after-delete, entirely without recursion, bounded by
// AVLMaxHeight. Every node access goes through the cache via pinRef/unpinRef
// so pages stay resident exactly as long as a routine is touching them,
// following the hand-over-hand pin discipline spec §4.2 describes.

// avlFrame is one back-trace entry: the ancestor node and which child
// direction the search descended from it (-1 left, +1 right).
type avlFrame struct {
	Ref Offset
	Dir int8
}

// splitRef decomposes an absolute reference into its containing page's
// file offset and the byte offset within that page.
func splitRef(ref Offset) (pageOffset Offset, inPage int) {
	rem := uint64(ref) % PageSize
	return Offset(uint64(ref) - rem), int(rem)
}

// refFromSlot builds a node reference that names a slot-array entry,
// rather than the node's data directly: the slot entry's page offset never
// changes across an intra-page compaction (only the data offset stored in
// it does), which is what makes a reference "stable across compactions"
// per spec's glossary entry for Slot. resize_node/free_node already keep
// each moved node's slot entry up to date, so this indirection is the only
// change needed for references elsewhere (AVL children, tree roots, link
// targets) to keep resolving correctly after a resize relocates a node.
func refFromSlot(pageOffset Offset, slotIdx int) Offset {
	return pageOffset + Offset(slotEntryOffset(slotIdx))
}

// pinRef pins the page containing ref and returns the frame plus the
// node's current in-page data offset, resolved through the slot array.
// ref must be non-zero.
func (r *Registry) pinRef(ref Offset) (*cachedFrame, int, error) {
	pageOff, slotEntryOff := splitRef(ref)
	f, err := r.cache.acquire(pageOff, false)
	if err != nil {
		return nil, 0, err
	}
	slotIdx := (slotEntryOff - dataSlotsStart) / 2
	nodeOff := int(slotValue(r, f.data, slotIdx))
	return f, nodeOff, nil
}

func (r *Registry) unpinFrame(f *cachedFrame) {
	unpin(f)
}

// treeRoot abstracts "where is this tree's root reference stored", since a
// root may live in the header (top-level children, back-link tree) or
// inside a key node (its children-root / values-root fields).
type treeRoot struct {
	get func() Offset
	set func(Offset)
}

// avlSearch descends from root comparing names with cmp, building the
// back-trace stack as it goes. Returns the matching node's reference (0 if
// not found) and the stack describing the path taken.
func (r *Registry) avlSearch(root Offset, name []byte, cmp Comparator) (Offset, []avlFrame, error) {
	var stack []avlFrame
	cur := root
	for cur != 0 {
		if len(stack) >= AVLMaxHeight {
			return 0, nil, newErr(KindInternal, "avl stack overflow")
		}
		f, off, err := r.pinRef(cur)
		if err != nil {
			return 0, nil, err
		}
		curName := append([]byte(nil), nodeName(r, f.data, off)...)
		c := cmp(name, curName)
		if c == 0 {
			r.unpinFrame(f)
			return cur, stack, nil
		}
		var dir int8
		var next Offset
		if c < 0 {
			dir = -1
			next = nodeLeft(r, f.data, off)
		} else {
			dir = 1
			next = nodeRight(r, f.data, off)
		}
		stack = append(stack, avlFrame{Ref: cur, Dir: dir})
		r.unpinFrame(f)
		cur = next
	}
	return 0, stack, nil
}

// attachChild sets node's left or right child reference, depending on dir.
func (r *Registry) attachChild(nodeRef Offset, dir int8, child Offset) error {
	f, off, err := r.pinRef(nodeRef)
	if err != nil {
		return err
	}
	defer r.unpinFrame(f)
	markDirty(f)
	if dir < 0 {
		setNodeLeft(r, f.data, off, child)
	} else {
		setNodeRight(r, f.data, off, child)
	}
	return nil
}

func (r *Registry) childRef(nodeRef Offset, dir int8) (Offset, error) {
	f, off, err := r.pinRef(nodeRef)
	if err != nil {
		return 0, err
	}
	defer r.unpinFrame(f)
	if dir < 0 {
		return nodeLeft(r, f.data, off), nil
	}
	return nodeRight(r, f.data, off), nil
}

func (r *Registry) getBF(nodeRef Offset) (int8, error) {
	f, off, err := r.pinRef(nodeRef)
	if err != nil {
		return 0, err
	}
	defer r.unpinFrame(f)
	return nodeBF(r, f.data, off), nil
}

func (r *Registry) setBF(nodeRef Offset, bf int8) error {
	f, off, err := r.pinRef(nodeRef)
	if err != nil {
		return err
	}
	defer r.unpinFrame(f)
	markDirty(f)
	setNodeBF(r, f.data, off, bf)
	return nil
}

// rotateLeft performs a standard AVL left rotation around x, whose right
// child is z: z becomes the subtree root, x becomes z's left child, and
// z's former left child becomes x's new right child. Returns z.
func (r *Registry) rotateLeft(x Offset) (Offset, error) {
	z, err := r.childRef(x, 1)
	if err != nil {
		return 0, err
	}
	zLeft, err := r.childRef(z, -1)
	if err != nil {
		return 0, err
	}
	if err := r.attachChild(x, 1, zLeft); err != nil {
		return 0, err
	}
	if err := r.attachChild(z, -1, x); err != nil {
		return 0, err
	}
	return z, nil
}

// rotateRight is the mirror of rotateLeft around x, whose left child is z.
func (r *Registry) rotateRight(x Offset) (Offset, error) {
	z, err := r.childRef(x, -1)
	if err != nil {
		return 0, err
	}
	zRight, err := r.childRef(z, 1)
	if err != nil {
		return 0, err
	}
	if err := r.attachChild(x, -1, zRight); err != nil {
		return 0, err
	}
	if err := r.attachChild(z, 1, x); err != nil {
		return 0, err
	}
	return z, nil
}

// rebalanceAt resolves an imbalance (|newBF| == 2) at x using the four
// standard rotation cases, returning the new subtree root and whether the
// overall subtree height decreased relative to before the triggering
// change (used by delete to decide whether to keep propagating upward;
// insert always stops after the first rotation regardless of this value).
func (r *Registry) rebalanceAt(x Offset, newBF int8) (Offset, bool, error) {
	if newBF == 2 {
		z, err := r.childRef(x, 1)
		if err != nil {
			return 0, false, err
		}
		zbf, err := r.getBF(z)
		if err != nil {
			return 0, false, err
		}
		if zbf >= 0 {
			root, err := r.rotateLeft(x)
			if err != nil {
				return 0, false, err
			}
			heightSame := zbf == 0
			if heightSame {
				r.setBF(x, 1)
				r.setBF(z, -1)
			} else {
				r.setBF(x, 0)
				r.setBF(z, 0)
			}
			return root, !heightSame, nil
		}
		y, err := r.childRef(z, -1)
		if err != nil {
			return 0, false, err
		}
		ybf, err := r.getBF(y)
		if err != nil {
			return 0, false, err
		}
		if _, err := r.rotateRight(z); err != nil {
			return 0, false, err
		}
		if err := r.attachChild(x, 1, y); err != nil {
			return 0, false, err
		}
		root, err := r.rotateLeft(x)
		if err != nil {
			return 0, false, err
		}
		switch ybf {
		case 1:
			r.setBF(x, -1)
			r.setBF(z, 0)
		case -1:
			r.setBF(x, 0)
			r.setBF(z, 1)
		default:
			r.setBF(x, 0)
			r.setBF(z, 0)
		}
		r.setBF(y, 0)
		return root, true, nil
	}

	// newBF == -2, mirror image.
	z, err := r.childRef(x, -1)
	if err != nil {
		return 0, false, err
	}
	zbf, err := r.getBF(z)
	if err != nil {
		return 0, false, err
	}
	if zbf <= 0 {
		root, err := r.rotateRight(x)
		if err != nil {
			return 0, false, err
		}
		heightSame := zbf == 0
		if heightSame {
			r.setBF(x, -1)
			r.setBF(z, 1)
		} else {
			r.setBF(x, 0)
			r.setBF(z, 0)
		}
		return root, !heightSame, nil
	}
	y, err := r.childRef(z, 1)
	if err != nil {
		return 0, false, err
	}
	ybf, err := r.getBF(y)
	if err != nil {
		return 0, false, err
	}
	if _, err := r.rotateLeft(z); err != nil {
		return 0, false, err
	}
	if err := r.attachChild(x, -1, y); err != nil {
		return 0, false, err
	}
	root, err := r.rotateRight(x)
	if err != nil {
		return 0, false, err
	}
	switch ybf {
	case -1:
		r.setBF(x, 1)
		r.setBF(z, 0)
	case 1:
		r.setBF(x, 0)
		r.setBF(z, -1)
	default:
		r.setBF(x, 0)
		r.setBF(z, 0)
	}
	r.setBF(y, 0)
	return root, true, nil
}

// relinkParent attaches newChild under stack[i-1] (or the tree root, if i
// is the bottom of the stack) in the direction that originally led to
// stack[i]'s old subtree.
func (r *Registry) relinkParent(stack []avlFrame, i int, newChild Offset, root treeRoot) error {
	if i == 0 {
		root.set(newChild)
		return nil
	}
	parent := stack[i-1]
	return r.attachChild(parent.Ref, parent.Dir, newChild)
}

// avlInsert attaches newRef as a leaf at the position described by stack
// (the result of a not-found avlSearch) and rebalances upward.
func (r *Registry) avlInsert(stack []avlFrame, newRef Offset, root treeRoot) error {
	if len(stack) == 0 {
		root.set(newRef)
		return nil
	}
	top := stack[len(stack)-1]
	if err := r.attachChild(top.Ref, top.Dir, newRef); err != nil {
		return err
	}

	for i := len(stack) - 1; i >= 0; i-- {
		frame := stack[i]
		bf, err := r.getBF(frame.Ref)
		if err != nil {
			return err
		}
		newBF := bf + frame.Dir
		if bf == 0 {
			if err := r.setBF(frame.Ref, newBF); err != nil {
				return err
			}
			continue
		}
		if newBF == 0 {
			return r.setBF(frame.Ref, 0)
		}
		newRoot, _, err := r.rebalanceAt(frame.Ref, newBF)
		if err != nil {
			return err
		}
		return r.relinkParent(stack, i, newRoot, root)
	}
	return nil
}

// avlDeleteAt removes the node identified by target (found via avlSearch;
// stack is the back-trace to it, not including target itself) and
// rebalances upward. Implements the three splice cases of spec §4.4
// deletion.
func (r *Registry) avlDeleteAt(target Offset, stack []avlFrame, root treeRoot) error {
	left, err := r.childRef(target, -1)
	if err != nil {
		return err
	}
	right, err := r.childRef(target, 1)
	if err != nil {
		return err
	}

	var shrinkStack []avlFrame

	switch {
	case left == 0 && right == 0:
		if err := r.relinkParent(stack, len(stack), 0, root); err != nil {
			return err
		}
		shrinkStack = stack

	case left == 0 || right == 0:
		child := left
		if child == 0 {
			child = right
		}
		if err := r.relinkParent(stack, len(stack), child, root); err != nil {
			return err
		}
		shrinkStack = stack

	default:
		// Two children: find the in-order successor (leftmost of the
		// right subtree), splice it into target's position, carrying
		// target's BF and children, then shrink from the successor's
		// old parent downward.
		succRef := right
		succStack := append(append([]avlFrame(nil), stack...), avlFrame{Ref: target, Dir: 1})
		for {
			nextLeft, err := r.childRef(succRef, -1)
			if err != nil {
				return err
			}
			if nextLeft == 0 {
				break
			}
			succStack = append(succStack, avlFrame{Ref: succRef, Dir: -1})
			succRef = nextLeft
		}

		succRight, err := r.childRef(succRef, 1)
		if err != nil {
			return err
		}
		targetBF, err := r.getBF(target)
		if err != nil {
			return err
		}

		// Detach the successor from its parent, promoting its right child.
		succParent := succStack[len(succStack)-1]
		if succParent.Ref == target {
			// successor was target's immediate right child.
			if err := r.attachChild(target, 1, succRight); err != nil {
				return err
			}
		} else {
			if err := r.attachChild(succParent.Ref, -1, succRight); err != nil {
				return err
			}
		}

		if err := r.attachChild(succRef, -1, left); err != nil {
			return err
		}
		newRightOfSucc := right
		if succParent.Ref == target {
			newRightOfSucc = succRight
		}
		if err := r.attachChild(succRef, 1, newRightOfSucc); err != nil {
			return err
		}
		if err := r.setBF(succRef, targetBF); err != nil {
			return err
		}
		if err := r.relinkParent(stack, len(stack), succRef, root); err != nil {
			return err
		}

		// Fix up the back-trace: everywhere succRef appears in place of
		// target, and the successor's old parent frame now shrinks on its
		// left (or, if the successor was target's direct child, the
		// shrink happened on target/succRef's right).
		shrinkStack = append(append([]avlFrame(nil), stack...), avlFrame{Ref: succRef, Dir: 1})
		if succParent.Ref != target {
			for _, fr := range succStack[len(stack)+1:] {
				shrinkStack = append(shrinkStack, fr)
			}
		}
	}

	return r.rebalanceAfterDelete(shrinkStack, root)
}

// rebalanceAfterDelete runs balance-up-after-delete from the bottom of
// shrinkStack toward the root, stopping as soon as an ancestor's new BF is
// ±1 (height unchanged).
func (r *Registry) rebalanceAfterDelete(stack []avlFrame, root treeRoot) error {
	for i := len(stack) - 1; i >= 0; i-- {
		frame := stack[i]
		bf, err := r.getBF(frame.Ref)
		if err != nil {
			return err
		}
		newBF := bf - frame.Dir
		switch {
		case newBF == 0:
			if err := r.setBF(frame.Ref, 0); err != nil {
				return err
			}
			continue
		case newBF == 1 || newBF == -1:
			return r.setBF(frame.Ref, newBF)
		default:
			newRoot, heightDecreased, err := r.rebalanceAt(frame.Ref, newBF)
			if err != nil {
				return err
			}
			if err := r.relinkParent(stack, i, newRoot, root); err != nil {
				return err
			}
			if !heightDecreased {
				return nil
			}
			// continue propagating with newRoot standing in for frame.Ref
			stack[i].Ref = newRoot
		}
	}
	return nil
}
