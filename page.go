package avlreg

import "encoding/binary"

// Layout offsets shared by every page (spec §3 Page, §6 File format). A
// "ref slot" is always 8 bytes on disk: offsetSize significant bytes
// (4 or 8) plus zero pad, so every field after it lands on the same offset
// regardless of offset width, per spec §6 "4-byte pad when using 32-bit
// offsets to keep 8-byte alignment".
const (
	offChecksum   = 0 // uint32
	offPinCount   = 4 // uint32, memory-only, written 0
	offSelfRef    = 8 // ref slot (8)
	offStatus     = 16
	offPageType   = 17
	offFormatVersion = 18 // uint16, header page only: on-disk format version
	commonHeaderSize = 20
)

// formatVersion is the on-disk format version stamped into a fresh header
// page and checked on open (spec has no explicit version byte, but the
// teacher's own Version.go stamps and checks a format version on every
// open, and carrying one here costs two otherwise-reserved bytes).
const formatVersion uint16 = 1

// Header page (page 0) layout, continuing after the common 20-byte prefix.
const (
	hdrPageCount    = commonHeaderSize      // uint32 @ 20
	hdrPageSize     = hdrPageCount + 4      // uint32 @ 24
	hdrChildrenRoot = hdrPageSize + 4       // ref slot @ 28
	hdrLinksRoot    = hdrChildrenRoot + 8   // ref slot @ 36
	hdrFlags        = hdrLinksRoot + 8      // uint32 @ 44
	hdrPagePool     = hdrFlags + 4          // 256 * uint32 @ 48
	hdrPagePoolEnd  = hdrPagePool + 256*4   // 1072
)

// Data page layout, continuing after the common 20-byte prefix.
const (
	dataTop        = commonHeaderSize      // uint16 @ 20
	dataFreelist   = dataTop + 2           // uint16 @ 22
	dataSlotCount  = dataFreelist + 2      // uint16 @ 24
	dataSlotsStart = dataSlotCount + 2     // uint16[] @ 26
)

func (r *Registry) byteOrder() binary.ByteOrder {
	if r.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (r *Registry) putRef(p page, off int, v Offset) {
	bo := r.byteOrder()
	for i := 0; i < 8; i++ {
		p[off+i] = 0
	}
	if r.offsetSize == 4 {
		bo.PutUint32(p[off:off+4], uint32(v))
	} else {
		bo.PutUint64(p[off:off+8], uint64(v))
	}
}

func (r *Registry) getRef(p page, off int) Offset {
	bo := r.byteOrder()
	if r.offsetSize == 4 {
		return Offset(bo.Uint32(p[off : off+4]))
	}
	return Offset(bo.Uint64(p[off : off+8]))
}

// ---- common page fields ----

func (r *Registry) pageChecksumField(p page) uint32 { return r.byteOrder().Uint32(p[offChecksum:]) }
func (r *Registry) setPageChecksumField(p page, v uint32) {
	r.byteOrder().PutUint32(p[offChecksum:], v)
}

func (r *Registry) pageSelfOffset(p page) Offset    { return r.getRef(p, offSelfRef) }
func (r *Registry) setPageSelfOffset(p page, v Offset) { r.putRef(p, offSelfRef, v) }

func (r *Registry) pageStatus(p page) uint8       { return p[offStatus] }
func (r *Registry) setPageStatus(p page, v uint8) { p[offStatus] = v }
func (r *Registry) pageIsDirty(p page) bool       { return p[offStatus]&statusDirty != 0 }
func (r *Registry) setPageDirty(p page, dirty bool) {
	if dirty {
		p[offStatus] |= statusDirty
	} else {
		p[offStatus] &^= statusDirty
	}
}

func (r *Registry) pageType(p page) uint8       { return p[offPageType] }
func (r *Registry) setPageType(p page, v uint8) { p[offPageType] = v }

// pageFormatVersion/setPageFormatVersion are only meaningful on the header
// page; data pages leave these two bytes zero.
func (r *Registry) pageFormatVersion(p page) uint16 {
	return r.byteOrder().Uint16(p[offFormatVersion:])
}
func (r *Registry) setPageFormatVersion(p page, v uint16) {
	r.byteOrder().PutUint16(p[offFormatVersion:], v)
}

// ---- header page fields ----

func (r *Registry) hdrPageCount() uint32 { return r.byteOrder().Uint32(r.header[hdrPageCount:]) }
func (r *Registry) setHdrPageCount(v uint32) {
	r.byteOrder().PutUint32(r.header[hdrPageCount:], v)
}

func (r *Registry) hdrPageSize() uint32 { return r.byteOrder().Uint32(r.header[hdrPageSize:]) }
func (r *Registry) setHdrPageSize(v uint32) {
	r.byteOrder().PutUint32(r.header[hdrPageSize:], v)
}

func (r *Registry) hdrChildrenRoot() Offset { return r.getRef(r.header, hdrChildrenRoot) }
func (r *Registry) setHdrChildrenRoot(v Offset) { r.putRef(r.header, hdrChildrenRoot, v) }

func (r *Registry) hdrLinksRoot() Offset     { return r.getRef(r.header, hdrLinksRoot) }
func (r *Registry) setHdrLinksRoot(v Offset) { r.putRef(r.header, hdrLinksRoot, v) }

func (r *Registry) hdrFlags() uint32 { return r.byteOrder().Uint32(r.header[hdrFlags:]) }
func (r *Registry) setHdrFlags(v uint32) {
	r.byteOrder().PutUint32(r.header[hdrFlags:], v)
}

// pagePoolBucket returns the bucket index for a key at depth level d whose
// node kind is value (isValue) or key (!isValue), per spec §4.3
// "Page-pool hint": 2d + is-value, collapsing depths >=128 to the last
// buckets.
func pagePoolBucket(depth int, isValue bool) int {
	if depth >= 128 {
		depth = 127
	}
	idx := depth * 2
	if isValue {
		idx++
	}
	return idx
}

func (r *Registry) hdrPagePoolEntry(bucket int) uint32 {
	off := hdrPagePool + bucket*4
	return r.byteOrder().Uint32(r.header[off:])
}

func (r *Registry) setHdrPagePoolEntry(bucket int, pageNum uint32) {
	off := hdrPagePool + bucket*4
	r.byteOrder().PutUint32(r.header[off:], pageNum)
}

// ---- data page fields ----
//
// Unlike the header fields above, data page accessors take an explicit
// page argument: many data page frames are live across cache rows at
// once, whereas there is exactly one header.

func dataTopOf(r *Registry, p page) uint16 { return r.byteOrder().Uint16(p[dataTop:]) }
func setDataTopOf(r *Registry, p page, v uint16) { r.byteOrder().PutUint16(p[dataTop:], v) }

func dataFreelistOf(r *Registry, p page) uint16 { return r.byteOrder().Uint16(p[dataFreelist:]) }
func setDataFreelistOf(r *Registry, p page, v uint16) {
	r.byteOrder().PutUint16(p[dataFreelist:], v)
}

func dataSlotCountOf(r *Registry, p page) uint16 { return r.byteOrder().Uint16(p[dataSlotCount:]) }
func setDataSlotCountOf(r *Registry, p page, v uint16) {
	r.byteOrder().PutUint16(p[dataSlotCount:], v)
}

func slotEntryOffset(idx int) int { return dataSlotsStart + idx*2 }

func slotValue(r *Registry, p page, idx int) uint16 {
	return r.byteOrder().Uint16(p[slotEntryOffset(idx):])
}
func setSlotValue(r *Registry, p page, idx int, v uint16) {
	r.byteOrder().PutUint16(p[slotEntryOffset(idx):], v)
}

// initDataPage zeroes a fresh frame into an empty data page at selfOffset.
func (r *Registry) initDataPage(p page, selfOffset Offset) {
	for i := range p {
		p[i] = 0
	}
	r.setPageType(p, pageTypeData)
	r.setPageSelfOffset(p, selfOffset)
	setDataTopOf(r, p, PageSize)
	setDataFreelistOf(r, p, noSlot)
	setDataSlotCountOf(r, p, 0)
}

// slotRegionEnd is the first byte not usable by the slot array, i.e. the
// offset just past the last existing slot entry.
func slotRegionEnd(r *Registry, p page) int {
	return slotEntryOffset(int(dataSlotCountOf(r, p)))
}

// freeSpace is the room between the end of the slot array and the current
// top-of-nodes, available for a new slot entry plus node bytes.
func freeSpace(r *Registry, p page) int {
	return int(dataTopOf(r, p)) - slotRegionEnd(r, p)
}

const noSlot = 0xFFFF // sentinel: free-slot list terminator / no-slot

// allocNode reserves size bytes (already 4-byte aligned) for a new node in
// p, returning the node's byte offset within the page and its slot index.
// Implements spec §4.3 alloc_node: pop the free-slot list if non-empty,
// else grow the slot array; bump top down; zero the node and stamp the slot
// index into its header. The caller writes the node's size and type.
func (r *Registry) allocNode(p page, size int) (nodeOff int, slotIdx int, err error) {
	if size <= 0 || size%4 != 0 || size > PageSize {
		return 0, 0, newErr(KindInternal, "node size must be a positive multiple of 4")
	}

	freeHead := dataFreelistOf(r, p)
	needsNewSlot := freeHead == noSlot

	required := size
	if needsNewSlot {
		required += 2
	}
	if required > freeSpace(r, p) {
		return 0, 0, newErr(KindNoMem, "page has no space for node")
	}

	newTop := int(dataTopOf(r, p)) - size
	setDataTopOf(r, p, uint16(newTop))

	if needsNewSlot {
		slotIdx = int(dataSlotCountOf(r, p))
		setDataSlotCountOf(r, p, uint16(slotIdx+1))
	} else {
		slotIdx = int(freeHead)
		nextFree := slotValue(r, p, slotIdx)
		setDataFreelistOf(r, p, nextFree)
	}

	setSlotValue(r, p, slotIdx, uint16(newTop))
	for i := 0; i < size; i++ {
		p[newTop+i] = 0
	}
	setNodeSlotBack(r, p, newTop, uint16(slotIdx))

	return newTop, slotIdx, nil
}

// resizeNode changes the node at nodeOff to newSize bytes, relocating it if
// necessary and shifting every other node in the page to keep the bump
// region compact (spec §4.3 resize_node). newSize == 0 deletes the node via
// freeNode. Returns the node's new offset.
func (r *Registry) resizeNode(p page, nodeOff int, newSize int) (int, error) {
	if newSize == 0 {
		return 0, r.freeNode(p, nodeOff)
	}
	if newSize%4 != 0 {
		return 0, newErr(KindInternal, "node size must be a multiple of 4")
	}

	oldSize := int(nodeSize(r, p, nodeOff))
	if newSize == oldSize {
		return nodeOff, nil
	}

	slotIdx := int(nodeSlotBack(r, p, nodeOff))
	top := int(dataTopOf(r, p))

	if newSize < oldSize {
		shrink := oldSize - newSize
		// Nodes allocated after nodeOff sit at lower offsets (between top
		// and nodeOff, since allocation packs downward from PageSize).
		// The resized node first moves its leading bytes to the tail end
		// of its old span, then those nodes shift down by shrink to close
		// the gap the shrink leaves.
		newOff := nodeOff + shrink
		copy(p[newOff:newOff+newSize], p[nodeOff:nodeOff+newSize])
		shiftNodesInRange(r, p, top, nodeOff, shrink)
		newTop := top + shrink
		setDataTopOf(r, p, uint16(newTop))
		setSlotValue(r, p, slotIdx, uint16(newOff))
		setNodeSize(r, p, newOff, uint16(newSize))
		setNodeSlotBack(r, p, newOff, uint16(slotIdx))
		return newOff, nil
	}

	grow := newSize - oldSize
	if grow > freeSpace(r, p) {
		return 0, newErr(KindNoMem, "no room to grow node")
	}
	shiftNodesInRange(r, p, top, nodeOff, -grow)
	newTop := top - grow
	setDataTopOf(r, p, uint16(newTop))
	newOff := nodeOff - grow
	copy(p[newOff:newOff+oldSize], p[nodeOff:nodeOff+oldSize])
	setSlotValue(r, p, slotIdx, uint16(newOff))
	setNodeSize(r, p, newOff, uint16(newSize))
	setNodeSlotBack(r, p, newOff, uint16(slotIdx))
	for i := oldSize; i < newSize; i++ {
		p[newOff+i] = 0
	}
	return newOff, nil
}

// shiftNodesInRange moves every node whose current offset is in
// [top, boundary) by delta bytes (positive delta moves toward higher
// offsets, i.e. down the page), updating each moved node's slot entry.
// boundary is exclusive and is the offset of the node being resized, which
// the caller repositions itself.
func shiftNodesInRange(r *Registry, p page, top, boundary int, delta int) {
	if delta == 0 {
		return
	}
	off := top
	type move struct{ from, to, size, slot int }
	var moves []move
	for off < boundary {
		size := int(nodeSize(r, p, off))
		slot := int(nodeSlotBack(r, p, off))
		moves = append(moves, move{from: off, to: off + delta, size: size, slot: slot})
		off += size
	}
	if delta > 0 {
		for i := len(moves) - 1; i >= 0; i-- {
			m := moves[i]
			copy(p[m.to:m.to+m.size], p[m.from:m.from+m.size])
		}
	} else {
		for _, m := range moves {
			copy(p[m.to:m.to+m.size], p[m.from:m.from+m.size])
		}
	}
	for _, m := range moves {
		setSlotValue(r, p, m.slot, uint16(m.to))
	}
}

// freeNode releases the node at nodeOff. If it was the most recently
// allocated slot it's popped from the array; otherwise it's chained onto
// the free-slot list (spec §4.3 free_node).
func (r *Registry) freeNode(p page, nodeOff int) error {
	size := int(nodeSize(r, p, nodeOff))
	slotIdx := int(nodeSlotBack(r, p, nodeOff))
	top := int(dataTopOf(r, p))

	shiftNodesInRange(r, p, top, nodeOff, size)
	newTop := top + size
	setDataTopOf(r, p, uint16(newTop))

	slotCount := int(dataSlotCountOf(r, p))
	if slotIdx == slotCount-1 {
		setDataSlotCountOf(r, p, uint16(slotIdx))
	} else {
		head := dataFreelistOf(r, p)
		setSlotValue(r, p, slotIdx, head)
		setDataFreelistOf(r, p, uint16(slotIdx))
	}
	return nil
}
