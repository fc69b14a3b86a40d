package avlreg

import "bytes"

// Open creates or opens a registry file per opts (spec §6 "open"). CREATE
// initializes a fresh header page when the file is empty; otherwise the
// existing header is loaded and validated.
func Open(opts Options) (*Registry, error) {
	if opts.Path == "" {
		return nil, newErr(KindParam, "path required")
	}
	create := opts.Flags&FlagCreate != 0
	io, err := openFileIO(opts.Path, create)
	if err != nil {
		return nil, err
	}

	offsetSize := 4
	if opts.LargeOffsets {
		offsetSize = 8
	}
	rowItems := opts.RowItems
	if rowItems <= 0 {
		rowItems = DefaultRowItems
	}
	cacheKB := opts.CacheSizeKB
	if cacheKB <= 0 {
		cacheKB = DefaultCacheKB
	}
	defaultCmp := opts.DefaultComparator
	if defaultCmp == nil {
		defaultCmp = defaultComparator()
	}

	r := &Registry{
		path:       opts.Path,
		flags:      opts.Flags,
		offsetSize: offsetSize,
		autosave:   opts.Flags&FlagAutosave != 0,
		rowItems:   rowItems,
		defaultCmp: defaultCmp,
		pool:       newBufferPool(defaultBlockSize),
		lock:       newDBLock(),
		header:     make(page, PageSize),
		shadowHeader: make(page, PageSize),
		metrics:    newStoreMetrics(),
	}
	r.fileIO = io

	size, err := io.Size()
	if err != nil {
		r.pool.destroy()
		return nil, err
	}

	if size == 0 {
		if !create {
			r.pool.destroy()
			return nil, newErr(KindParam, "file is empty and CREATE was not requested")
		}
		r.initializeHeader()
		if err := io.WriteAt(r.header, 0); err != nil {
			r.pool.destroy()
			return nil, err
		}
		if err := io.Truncate(PageSize); err != nil {
			r.pool.destroy()
			return nil, err
		}
	} else {
		if err := io.ReadAt(r.header, 0); err != nil {
			r.pool.destroy()
			return nil, err
		}
		if pageChecksum(r.header) != r.pageChecksumField(r.header) {
			r.pool.destroy()
			return nil, newErr(KindCorrupt, "header checksum mismatch")
		}
		r.bigEndian = r.hdrFlags()&headerFlagBigEndian != 0
		if r.hdrFlags()&headerFlagBigOffsets != 0 {
			r.offsetSize = 8
		} else {
			r.offsetSize = 4
		}
		if v := r.pageFormatVersion(r.header); v != formatVersion {
			r.pool.destroy()
			return nil, newErr(KindMismatch, "unsupported on-disk format version")
		}
	}
	copy(r.shadowHeader, r.header)

	r.cache = newPageCache(r, cacheKB, rowItems, io)
	return r, nil
}

func (r *Registry) initializeHeader() {
	for i := range r.header {
		r.header[i] = 0
	}
	r.setPageType(r.header, pageTypeHeader)
	r.setPageFormatVersion(r.header, formatVersion)
	r.setPageSelfOffset(r.header, 0)
	r.setHdrPageCount(1)
	r.setHdrPageSize(PageSize)
	r.setHdrChildrenRoot(0)
	r.setHdrLinksRoot(0)
	var flags uint32
	if r.offsetSize == 8 {
		flags |= headerFlagBigOffsets
	}
	if r.bigEndian {
		flags |= headerFlagBigEndian
	}
	r.setHdrFlags(flags)
	sum := pageChecksum(r.header)
	r.setPageChecksumField(r.header, sum)
}

// Close releases the underlying file. It does not commit; callers that
// want durability must Commit first.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.pool.destroy()
	return r.fileIO.Close()
}

func (r *Registry) keyTreeRoot(parent Offset, kind SetKind) treeRoot {
	if parent == 0 {
		return treeRoot{get: func() Offset { return r.hdrChildrenRoot() }, set: func(v Offset) { r.setHdrChildrenRoot(v) }}
	}
	return treeRoot{
		get: func() Offset {
			f, off, err := r.pinRef(parent)
			if err != nil {
				return 0
			}
			defer r.unpinFrame(f)
			if kind == Keys {
				return keyChildrenRoot(r, f.data, off)
			}
			return keyValuesRoot(r, f.data, off)
		},
		set: func(v Offset) {
			f, off, err := r.pinRef(parent)
			if err != nil {
				return
			}
			defer r.unpinFrame(f)
			markDirty(f)
			if kind == Keys {
				setKeyChildrenRoot(r, f.data, off, v)
			} else {
				setKeyValuesRoot(r, f.data, off, v)
			}
		},
	}
}

// linksTreeRoot is the header's back-link tree (spec §3 "Relationships").
func (r *Registry) linksTreeRoot() treeRoot {
	return treeRoot{get: func() Offset { return r.hdrLinksRoot() }, set: func(v Offset) { r.setHdrLinksRoot(v) }}
}

// allocNodeForBucket returns a pinned frame and the slot index of a fresh
// node-sized allocation, using the header's page-pool hint to cluster
// related nodes (spec §4.3 "Page-pool hint"). Caller must unpin the frame.
func (r *Registry) allocNodeForBucket(depth int, isKeyType bool, size int) (*cachedFrame, int, int, error) {
	bucket := pagePoolBucket(depth, !isKeyType)
	if pageNum := r.hdrPagePoolEntry(bucket); pageNum != 0 {
		pageOffset := Offset(pageNum) * PageSize
		if f, err := r.cache.acquire(pageOffset, false); err == nil {
			if off, slot, aerr := r.allocNode(f.data, size); aerr == nil {
				markDirty(f)
				return f, off, slot, nil
			}
			r.unpinFrame(f)
		}
	}

	pageNum := r.hdrPageCount()
	pageOffset := Offset(pageNum) * PageSize
	f, err := r.cache.acquire(pageOffset, true)
	if err != nil {
		return nil, 0, 0, err
	}
	r.initDataPage(f.data, pageOffset)
	off, slot, err := r.allocNode(f.data, size)
	if err != nil {
		r.unpinFrame(f)
		return nil, 0, 0, err
	}
	markDirty(f)
	r.setHdrPageCount(pageNum + 1)
	r.setHdrPagePoolEntry(bucket, pageNum)
	return f, off, slot, nil
}

// createNode is the shared body of every create_* operation: validate the
// name, look the name up in the target tree, allocate and fill a node of
// type t, and insert it. fill writes the type-specific fixed/variable data.
func (r *Registry) createNode(parent Offset, name []byte, kind SetKind, cmp Comparator, t NodeType, tailLen int, fill func(f *cachedFrame, off int)) (Offset, error) {
	if len(name) == 0 || len(name) > MaxNameLength {
		return 0, newErr(KindParam, "name length must be 1..240")
	}
	cmp = r.comparatorFor(cmp)

	depth := 0
	if parent != 0 {
		f, off, err := r.pinRef(parent)
		if err != nil {
			return 0, err
		}
		if nodeType(r, f.data, off) != NodeKey {
			r.unpinFrame(f)
			return 0, wrapErr(KindMismatch, "parent is not a key", nil)
		}
		depth = int(keyDepth(r, f.data, off)) + 1
		r.unpinFrame(f)
	} else if t != NodeKey {
		return 0, newErr(KindParam, "cannot create a value under the implicit root")
	}

	root := r.keyTreeRoot(parent, kind)
	existing, stack, err := r.avlSearch(root.get(), name, cmp)
	if err != nil {
		return 0, err
	}
	if existing != 0 {
		return 0, ErrExists
	}

	size := nodeTotalSize(t, len(name), tailLen)
	f, off, slot, err := r.allocNodeForBucket(depth, t == NodeKey, size)
	if err != nil {
		return 0, err
	}
	pageOffset := r.pageSelfOffset(f.data)
	setNodeSize(r, f.data, off, uint16(size))
	initNode(r, f.data, off, t, name)
	if t == NodeKey {
		setKeyDepth(r, f.data, off, uint16(depth))
	}
	fill(f, off)
	ref := refFromSlot(pageOffset, slot)
	r.unpinFrame(f)

	if err := r.avlInsert(stack, ref, root); err != nil {
		return 0, err
	}
	return ref, nil
}

// CreateKey creates an empty key named name under parent (0 = implicit
// root).
func (r *Registry) CreateKey(parent Offset, name []byte, cmp Comparator) (Offset, error) {
	var ref Offset
	err := r.withExclusive(func() error {
		var err error
		ref, err = r.createNode(parent, name, Keys, cmp, NodeKey, 0, func(f *cachedFrame, off int) {
			setKeyChildrenRoot(r, f.data, off, 0)
			setKeyValuesRoot(r, f.data, off, 0)
		})
		return err
	})
	r.setLastErr(err)
	return ref, err
}

// CreateInt32 creates a 32-bit integer value named name under parent.
func (r *Registry) CreateInt32(parent Offset, name []byte, v int32, cmp Comparator) (Offset, error) {
	var ref Offset
	err := r.withExclusive(func() error {
		var err error
		ref, err = r.createNode(parent, name, Values, cmp, NodeInt32, 0, func(f *cachedFrame, off int) {
			setInt32Value(r, f.data, off, v)
		})
		return err
	})
	r.setLastErr(err)
	return ref, err
}

// CreateInt64 creates a 64-bit integer value named name under parent.
func (r *Registry) CreateInt64(parent Offset, name []byte, v int64, cmp Comparator) (Offset, error) {
	var ref Offset
	err := r.withExclusive(func() error {
		var err error
		ref, err = r.createNode(parent, name, Values, cmp, NodeInt64, 0, func(f *cachedFrame, off int) {
			setInt64Value(r, f.data, off, v)
		})
		return err
	})
	r.setLastErr(err)
	return ref, err
}

// CreateDouble creates a binary64 floating-point value named name under
// parent.
func (r *Registry) CreateDouble(parent Offset, name []byte, v float64, cmp Comparator) (Offset, error) {
	var ref Offset
	err := r.withExclusive(func() error {
		var err error
		ref, err = r.createNode(parent, name, Values, cmp, NodeDouble, 0, func(f *cachedFrame, off int) {
			setDoubleValue(r, f.data, off, v)
		})
		return err
	})
	r.setLastErr(err)
	return ref, err
}

// CreateString creates a short string value (max 249 bytes plus trailing
// NUL) named name under parent.
func (r *Registry) CreateString(parent Offset, name []byte, v string, cmp Comparator) (Offset, error) {
	payload := append([]byte(v), 0)
	if len(payload) > MaxStringLength {
		return 0, newErr(KindParam, "string payload too long")
	}
	var ref Offset
	err := r.withExclusive(func() error {
		var err error
		ref, err = r.createNode(parent, name, Values, cmp, NodeString, len(payload), func(f *cachedFrame, off int) {
			setStringPayload(r, f.data, off, payload)
		})
		return err
	})
	r.setLastErr(err)
	return ref, err
}

// CreateBinary creates a short binary value (max 250 bytes) named name
// under parent.
func (r *Registry) CreateBinary(parent Offset, name []byte, v []byte, cmp Comparator) (Offset, error) {
	if len(v) > MaxBinaryLength {
		return 0, newErr(KindParam, "binary payload too long")
	}
	var ref Offset
	err := r.withExclusive(func() error {
		var err error
		ref, err = r.createNode(parent, name, Values, cmp, NodeBinary, len(v), func(f *cachedFrame, off int) {
			setBinaryPayload(r, f.data, off, v)
		})
		return err
	})
	r.setLastErr(err)
	return ref, err
}

// CreateLink creates a link value named name under parent, referencing
// target, and records a back-link entry so target's deletion is blocked
// while the link exists (spec §3 "Relationships").
func (r *Registry) CreateLink(parent Offset, name []byte, target Offset, cmp Comparator) (Offset, error) {
	if target == 0 {
		return 0, newErr(KindParam, "link target required")
	}
	var ref Offset
	err := r.withExclusive(func() error {
		var err error
		ref, err = r.createNode(parent, name, Values, cmp, NodeLink, 0, func(f *cachedFrame, off int) {
			setLinkTarget(r, f.data, off, target)
		})
		if err != nil {
			return err
		}
		return r.addBackLink(target, ref)
	})
	r.setLastErr(err)
	return ref, err
}

// Find looks up name in parent's children (Keys) or values (Values) tree.
func (r *Registry) Find(parent Offset, name []byte, kind SetKind, cmp Comparator) (Offset, error) {
	var ref Offset
	err := r.withShared(func() error {
		cmp = r.comparatorFor(cmp)
		root := r.keyTreeRoot(parent, kind)
		found, _, err := r.avlSearch(root.get(), name, cmp)
		if err != nil {
			return err
		}
		if found == 0 {
			return ErrNotFound
		}
		ref = found
		return nil
	})
	r.setLastErr(err)
	return ref, err
}

// anyNodeType tells readNode to skip the type check (used by GetType and
// GetName, which apply to every node variant).
const anyNodeType NodeType = 0xFF

func (r *Registry) readNode(node Offset, want NodeType, fn func(f *cachedFrame, off int) error) error {
	return r.withShared(func() error {
		f, off, err := r.pinRef(node)
		if err != nil {
			return err
		}
		defer r.unpinFrame(f)
		if want != anyNodeType && nodeType(r, f.data, off) != want {
			return wrapErr(KindMismatch, "node type does not match", nil)
		}
		return fn(f, off)
	})
}

// GetType returns the node's type tag.
func (r *Registry) GetType(node Offset) (NodeType, error) {
	var t NodeType
	err := r.readNode(node, anyNodeType, func(f *cachedFrame, off int) error {
		t = nodeType(r, f.data, off)
		return nil
	})
	r.setLastErr(err)
	return t, err
}

// GetName returns the node's name.
func (r *Registry) GetName(node Offset) (string, error) {
	var name string
	err := r.readNode(node, anyNodeType, func(f *cachedFrame, off int) error {
		name = string(nodeName(r, f.data, off))
		return nil
	})
	r.setLastErr(err)
	return name, err
}

func (r *Registry) GetInt32(node Offset) (int32, error) {
	var v int32
	err := r.readNode(node, NodeInt32, func(f *cachedFrame, off int) error {
		v = int32Value(r, f.data, off)
		return nil
	})
	r.setLastErr(err)
	return v, err
}

func (r *Registry) GetInt64(node Offset) (int64, error) {
	var v int64
	err := r.readNode(node, NodeInt64, func(f *cachedFrame, off int) error {
		v = int64Value(r, f.data, off)
		return nil
	})
	r.setLastErr(err)
	return v, err
}

func (r *Registry) GetDouble(node Offset) (float64, error) {
	var v float64
	err := r.readNode(node, NodeDouble, func(f *cachedFrame, off int) error {
		v = doubleValue(r, f.data, off)
		return nil
	})
	r.setLastErr(err)
	return v, err
}

func (r *Registry) GetString(node Offset) (string, error) {
	var v string
	err := r.readNode(node, NodeString, func(f *cachedFrame, off int) error {
		payload := stringPayload(r, f.data, off)
		if len(payload) > 0 {
			payload = payload[:len(payload)-1] // drop trailing NUL
		}
		v = string(payload)
		return nil
	})
	r.setLastErr(err)
	return v, err
}

func (r *Registry) GetBinary(node Offset) ([]byte, error) {
	var v []byte
	err := r.readNode(node, NodeBinary, func(f *cachedFrame, off int) error {
		v = append([]byte(nil), binaryPayload(r, f.data, off)...)
		return nil
	})
	r.setLastErr(err)
	return v, err
}

func (r *Registry) GetLink(node Offset) (Offset, error) {
	var v Offset
	err := r.readNode(node, NodeLink, func(f *cachedFrame, off int) error {
		v = linkTarget(r, f.data, off)
		return nil
	})
	r.setLastErr(err)
	return v, err
}

func (r *Registry) UpdateInt32(node Offset, v int32) error {
	err := r.withExclusive(func() error {
		f, off, err := r.pinRef(node)
		if err != nil {
			return err
		}
		defer r.unpinFrame(f)
		if nodeType(r, f.data, off) != NodeInt32 {
			return wrapErr(KindMismatch, "node is not int32", nil)
		}
		markDirty(f)
		setInt32Value(r, f.data, off, v)
		return nil
	})
	r.setLastErr(err)
	return err
}

func (r *Registry) UpdateInt64(node Offset, v int64) error {
	err := r.withExclusive(func() error {
		f, off, err := r.pinRef(node)
		if err != nil {
			return err
		}
		defer r.unpinFrame(f)
		if nodeType(r, f.data, off) != NodeInt64 {
			return wrapErr(KindMismatch, "node is not int64", nil)
		}
		markDirty(f)
		setInt64Value(r, f.data, off, v)
		return nil
	})
	r.setLastErr(err)
	return err
}

func (r *Registry) UpdateDouble(node Offset, v float64) error {
	err := r.withExclusive(func() error {
		f, off, err := r.pinRef(node)
		if err != nil {
			return err
		}
		defer r.unpinFrame(f)
		if nodeType(r, f.data, off) != NodeDouble {
			return wrapErr(KindMismatch, "node is not double", nil)
		}
		markDirty(f)
		setDoubleValue(r, f.data, off, v)
		return nil
	})
	r.setLastErr(err)
	return err
}

// resizeVariable is the shared body of UpdateString/UpdateBinary: it
// resizes the node in place (possibly relocating its data within the
// page; the node's external reference, which names its slot entry rather
// than its data, keeps resolving correctly, per refFromSlot) and rewrites
// the type-specific payload.
func (r *Registry) resizeVariable(node Offset, want NodeType, newTailLen int, write func(f *cachedFrame, off int)) error {
	return r.withExclusive(func() error {
		f, off, err := r.pinRef(node)
		if err != nil {
			return err
		}
		if nodeType(r, f.data, off) != want {
			r.unpinFrame(f)
			return wrapErr(KindMismatch, "node type does not match", nil)
		}
		nameLen := nodeNameLen(r, f.data, off)
		newSize := nodeTotalSize(want, nameLen, newTailLen)
		newOff, err := r.resizeNode(f.data, off, newSize)
		if err != nil {
			r.unpinFrame(f)
			return err
		}
		markDirty(f)
		setNodeSize(r, f.data, newOff, uint16(newSize))
		write(f, newOff)
		r.unpinFrame(f)
		return nil
	})
}

func (r *Registry) UpdateString(node Offset, v string) error {
	payload := append([]byte(v), 0)
	if len(payload) > MaxStringLength {
		return newErr(KindParam, "string payload too long")
	}
	err := r.resizeVariable(node, NodeString, len(payload), func(f *cachedFrame, off int) {
		setStringPayload(r, f.data, off, payload)
	})
	r.setLastErr(err)
	return err
}

func (r *Registry) UpdateBinary(node Offset, v []byte) error {
	if len(v) > MaxBinaryLength {
		return newErr(KindParam, "binary payload too long")
	}
	err := r.resizeVariable(node, NodeBinary, len(v), func(f *cachedFrame, off int) {
		setBinaryPayload(r, f.data, off, v)
	})
	r.setLastErr(err)
	return err
}

// Delete removes name from parent's children (Keys) or values (Values)
// tree. Deleting a key fails if it owns any children or values; deleting
// the target of a live link fails; deleting a link removes its back-link.
// The fast path begins shared, validates, then attempts to upgrade to
// exclusive, restarting on upgrade failure (spec §4.7).
func (r *Registry) Delete(parent Offset, name []byte, kind SetKind, cmp Comparator) error {
	cmp = r.comparatorFor(cmp)
	for {
		r.lock.lockShared()
		root := r.keyTreeRoot(parent, kind)
		found, stack, err := r.avlSearch(root.get(), name, cmp)
		if err != nil {
			r.lock.unlockShared()
			r.setLastErr(err)
			return err
		}
		if found == 0 {
			r.lock.unlockShared()
			r.setLastErr(ErrNotFound)
			return ErrNotFound
		}
		if err := r.checkDeletable(found); err != nil {
			r.lock.unlockShared()
			r.setLastErr(err)
			return err
		}

		if !r.lock.tryUpgrade() {
			continue // restart the whole operation, per spec §4.7
		}

		err = func() error {
			defer r.lock.unlockExclusive()
			if e := r.deleteLocked(found, stack, root); e != nil {
				r.rollback()
				return e
			}
			return nil
		}()
		r.setLastErr(err)
		return err
	}
}

func (r *Registry) checkDeletable(node Offset) error {
	f, off, err := r.pinRef(node)
	if err != nil {
		return err
	}
	t := nodeType(r, f.data, off)
	var childrenRoot, valuesRoot Offset
	if t == NodeKey {
		childrenRoot = keyChildrenRoot(r, f.data, off)
		valuesRoot = keyValuesRoot(r, f.data, off)
	}
	r.unpinFrame(f)

	if t == NodeKey && (childrenRoot != 0 || valuesRoot != 0) {
		return newErr(KindInvOper, "key has children or values")
	}
	hasLinks, err := r.hasBackLinks(node)
	if err != nil {
		return err
	}
	if hasLinks {
		return newErr(KindInvOper, "node is the target of a live link")
	}
	return nil
}

func (r *Registry) deleteLocked(node Offset, stack []avlFrame, root treeRoot) error {
	f, off, err := r.pinRef(node)
	if err != nil {
		return err
	}
	t := nodeType(r, f.data, off)
	var linkTgt Offset
	if t == NodeLink {
		linkTgt = linkTarget(r, f.data, off)
	}
	r.unpinFrame(f)

	if err := r.avlDeleteAt(node, stack, root); err != nil {
		return err
	}
	if err := r.freeNodeByRef(node); err != nil {
		return err
	}
	if t == NodeLink {
		return r.removeBackLink(linkTgt, node)
	}
	return nil
}

func (r *Registry) freeNodeByRef(node Offset) error {
	f, off, err := r.pinRef(node)
	if err != nil {
		return err
	}
	defer r.unpinFrame(f)
	markDirty(f)
	return r.freeNode(f.data, off)
}

// ---- back-link tree ----

func rawCompare(a, b []byte) int { return bytes.Compare(a, b) }

func encodeOffsetKey(v Offset) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

// addBackLink records that linkRef points at target, creating target's
// back-link key node in the header's back-link tree if this is the first
// link to it.
func (r *Registry) addBackLink(target, linkRef Offset) error {
	targetName := encodeOffsetKey(target)
	root := r.linksTreeRoot()
	blKey, stack, err := r.avlSearch(root.get(), targetName, rawCompare)
	if err != nil {
		return err
	}
	if blKey == 0 {
		size := nodeTotalSize(NodeKey, len(targetName), 0)
		f, off, slot, err := r.allocNodeForBucket(0, true, size)
		if err != nil {
			return err
		}
		pageOffset := r.pageSelfOffset(f.data)
		setNodeSize(r, f.data, off, uint16(size))
		initNode(r, f.data, off, NodeKey, targetName)
		setKeyDepth(r, f.data, off, 0)
		setKeyChildrenRoot(r, f.data, off, 0)
		setKeyValuesRoot(r, f.data, off, 0)
		blKey = refFromSlot(pageOffset, slot)
		r.unpinFrame(f)
		if err := r.avlInsert(stack, blKey, root); err != nil {
			return err
		}
	}

	entryName := encodeOffsetKey(linkRef)
	valuesRoot := r.keyTreeRoot(blKey, Values)
	existing, vstack, err := r.avlSearch(valuesRoot.get(), entryName, rawCompare)
	if err != nil {
		return err
	}
	if existing != 0 {
		return nil // already recorded
	}
	size := nodeTotalSize(NodeLink, len(entryName), 0)
	f, off, slot, err := r.allocNodeForBucket(1, false, size)
	if err != nil {
		return err
	}
	pageOffset := r.pageSelfOffset(f.data)
	setNodeSize(r, f.data, off, uint16(size))
	initNode(r, f.data, off, NodeLink, entryName)
	setLinkTarget(r, f.data, off, linkRef)
	entryRef := refFromSlot(pageOffset, slot)
	r.unpinFrame(f)
	return r.avlInsert(vstack, entryRef, valuesRoot)
}

// removeBackLink removes the back-link entry recording that linkRef points
// at target, cleaning up target's back-link key node if it has no more
// entries.
func (r *Registry) removeBackLink(target, linkRef Offset) error {
	targetName := encodeOffsetKey(target)
	root := r.linksTreeRoot()
	blKey, _, err := r.avlSearch(root.get(), targetName, rawCompare)
	if err != nil {
		return err
	}
	if blKey == 0 {
		return nil
	}

	entryName := encodeOffsetKey(linkRef)
	valuesRoot := r.keyTreeRoot(blKey, Values)
	entry, vstack, err := r.avlSearch(valuesRoot.get(), entryName, rawCompare)
	if err != nil {
		return err
	}
	if entry == 0 {
		return nil
	}
	if err := r.avlDeleteAt(entry, vstack, valuesRoot); err != nil {
		return err
	}
	if err := r.freeNodeByRef(entry); err != nil {
		return err
	}

	if valuesRoot.get() == 0 {
		blStack := []avlFrame{} // recompute by searching again for an accurate back-trace
		_, blStack, err = r.avlSearch(root.get(), targetName, rawCompare)
		if err != nil {
			return err
		}
		if err := r.avlDeleteAt(blKey, blStack, root); err != nil {
			return err
		}
		return r.freeNodeByRef(blKey)
	}
	return nil
}

// hasBackLinks reports whether any live link currently targets node.
func (r *Registry) hasBackLinks(node Offset) (bool, error) {
	targetName := encodeOffsetKey(node)
	root := r.linksTreeRoot()
	blKey, _, err := r.avlSearch(root.get(), targetName, rawCompare)
	if err != nil {
		return false, err
	}
	if blKey == 0 {
		return false, nil
	}
	return r.keyTreeRoot(blKey, Values).get() != 0, nil
}

// ---- in-order traversal ----

// InorderFirst positions a new cursor over parent's children or values
// (per kind), optionally seeking to key, and returns the first node.
func (r *Registry) InorderFirst(parent Offset, key []byte, kind SetKind, dir Direction, cmp Comparator) (*Cursor, Offset, error) {
	c := r.NewCursor(kind, dir)
	var first Offset
	err := r.withShared(func() error {
		if err := c.First(parent, key, cmp); err != nil {
			return err
		}
		n, err := c.Next()
		if err != nil {
			return err
		}
		first = n
		return nil
	})
	r.setLastErr(err)
	return c, first, err
}

// InorderNext advances a cursor previously positioned by InorderFirst.
func (r *Registry) InorderNext(c *Cursor) (Offset, error) {
	var next Offset
	err := r.withShared(func() error {
		n, err := c.Next()
		if err != nil {
			return err
		}
		next = n
		return nil
	})
	r.setLastErr(err)
	return next, err
}
