package avlreg

import "math"

// Node layout (spec §3 Node, §6 "Node layout"): a 2-byte composite header
// (bits 0-1 balance factor+1, bits 2-5 type, bits 6-15 size/4), a 2-byte
// slot back-pointer, a left and a right node reference (each an 8-byte ref
// slot per the page.go convention), a 1-byte name length, the name bytes,
// padding up to 4-byte alignment, then type-specific fixed data and
// variable tail.
const (
	nodeOffComposite = 0
	nodeOffSlotBack  = 2
	nodeOffLeftRef   = 4
	nodeOffRightRef  = nodeOffLeftRef + 8  // 12
	nodeOffNameLen   = nodeOffRightRef + 8 // 20
	nodeOffName      = nodeOffNameLen + 1  // 21
)

const (
	compositeBFMask   = 0x0003
	compositeTypeMask = 0x003C
	compositeTypeShift = 2
	compositeSizeShift = 6
)

func align4(n int) int { return (n + 3) &^ 3 }

func compositeOf(r *Registry, p page, off int) uint16 {
	return r.byteOrder().Uint16(p[off+nodeOffComposite:])
}
func setCompositeOf(r *Registry, p page, off int, v uint16) {
	r.byteOrder().PutUint16(p[off+nodeOffComposite:], v)
}

// nodeBF returns the node's stored balance factor, one of -1, 0, +1.
func nodeBF(r *Registry, p page, off int) int8 {
	return int8(compositeOf(r, p, off)&compositeBFMask) - 1
}

func setNodeBF(r *Registry, p page, off int, bf int8) {
	c := compositeOf(r, p, off)
	c = (c &^ compositeBFMask) | uint16(bf+1)&compositeBFMask
	setCompositeOf(r, p, off, c)
}

func nodeType(r *Registry, p page, off int) NodeType {
	return NodeType((compositeOf(r, p, off) & compositeTypeMask) >> compositeTypeShift)
}

func setNodeType(r *Registry, p page, off int, t NodeType) {
	c := compositeOf(r, p, off)
	c = (c &^ compositeTypeMask) | (uint16(t)<<compositeTypeShift)&compositeTypeMask
	setCompositeOf(r, p, off, c)
}

// nodeSize is the node's total byte length, stored as size/4 in the upper
// ten composite-header bits.
func nodeSize(r *Registry, p page, off int) uint16 {
	return (compositeOf(r, p, off) >> compositeSizeShift) * 4
}

func setNodeSize(r *Registry, p page, off int, size uint16) {
	c := compositeOf(r, p, off)
	c = (c & (compositeBFMask | compositeTypeMask)) | ((size / 4) << compositeSizeShift)
	setCompositeOf(r, p, off, c)
}

func nodeSlotBack(r *Registry, p page, off int) uint16 {
	return r.byteOrder().Uint16(p[off+nodeOffSlotBack:])
}
func setNodeSlotBack(r *Registry, p page, off int, slot uint16) {
	r.byteOrder().PutUint16(p[off+nodeOffSlotBack:], slot)
}

func nodeLeft(r *Registry, p page, off int) Offset { return r.getRef(p, off+nodeOffLeftRef) }
func setNodeLeft(r *Registry, p page, off int, v Offset) { r.putRef(p, off+nodeOffLeftRef, v) }

func nodeRight(r *Registry, p page, off int) Offset { return r.getRef(p, off+nodeOffRightRef) }
func setNodeRight(r *Registry, p page, off int, v Offset) { r.putRef(p, off+nodeOffRightRef, v) }

func nodeNameLen(r *Registry, p page, off int) int { return int(p[off+nodeOffNameLen]) }
func setNodeNameLen(r *Registry, p page, off int, n int) { p[off+nodeOffNameLen] = byte(n) }

func nodeName(r *Registry, p page, off int) []byte {
	n := nodeNameLen(r, p, off)
	start := off + nodeOffName
	return p[start : start+n]
}

func setNodeName(r *Registry, p page, off int, name []byte) {
	setNodeNameLen(r, p, off, len(name))
	copy(p[off+nodeOffName:], name)
}

// nodeFixedDataOffset is the page offset of the type-specific fixed data,
// immediately after the name, 4-byte aligned relative to the node start.
func nodeFixedDataOffset(r *Registry, p page, off int) int {
	n := nodeNameLen(r, p, off)
	return off + align4(nodeOffName+n)
}

// ---- per-type fixed/variable layout ----

const (
	keyFixedChildrenRoot = 0
	keyFixedValuesRoot   = 8
	keyFixedDepth        = 16
	keyFixedSize         = 18
)

func keyChildrenRoot(r *Registry, p page, off int) Offset {
	return r.getRef(p, nodeFixedDataOffset(r, p, off)+keyFixedChildrenRoot)
}
func setKeyChildrenRoot(r *Registry, p page, off int, v Offset) {
	r.putRef(p, nodeFixedDataOffset(r, p, off)+keyFixedChildrenRoot, v)
}

func keyValuesRoot(r *Registry, p page, off int) Offset {
	return r.getRef(p, nodeFixedDataOffset(r, p, off)+keyFixedValuesRoot)
}
func setKeyValuesRoot(r *Registry, p page, off int, v Offset) {
	r.putRef(p, nodeFixedDataOffset(r, p, off)+keyFixedValuesRoot, v)
}

func keyDepth(r *Registry, p page, off int) uint16 {
	fd := nodeFixedDataOffset(r, p, off)
	return r.byteOrder().Uint16(p[fd+keyFixedDepth:])
}
func setKeyDepth(r *Registry, p page, off int, depth uint16) {
	fd := nodeFixedDataOffset(r, p, off)
	r.byteOrder().PutUint16(p[fd+keyFixedDepth:], depth)
}

func int32Value(r *Registry, p page, off int) int32 {
	fd := nodeFixedDataOffset(r, p, off)
	return int32(r.byteOrder().Uint32(p[fd:]))
}
func setInt32Value(r *Registry, p page, off int, v int32) {
	fd := nodeFixedDataOffset(r, p, off)
	r.byteOrder().PutUint32(p[fd:], uint32(v))
}

// int64Value/setInt64Value store the 64-bit value as two 32-bit halves to
// keep every field on this node 4-byte aligned (spec §3 Int64 fixed data).
func int64Value(r *Registry, p page, off int) int64 {
	fd := nodeFixedDataOffset(r, p, off)
	bo := r.byteOrder()
	lo := uint64(bo.Uint32(p[fd:]))
	hi := uint64(bo.Uint32(p[fd+4:]))
	return int64(lo | hi<<32)
}

func setInt64Value(r *Registry, p page, off int, v int64) {
	fd := nodeFixedDataOffset(r, p, off)
	bo := r.byteOrder()
	bo.PutUint32(p[fd:], uint32(uint64(v)))
	bo.PutUint32(p[fd+4:], uint32(uint64(v)>>32))
}

func doubleValue(r *Registry, p page, off int) float64 {
	return math.Float64frombits(uint64(int64Value(r, p, off)))
}
func setDoubleValue(r *Registry, p page, off int, v float64) {
	setInt64Value(r, p, off, int64(math.Float64bits(v)))
}

func stringPayload(r *Registry, p page, off int) []byte {
	fd := nodeFixedDataOffset(r, p, off)
	n := int(p[fd])
	return p[fd+1 : fd+1+n]
}
func setStringPayload(r *Registry, p page, off int, nulTerminated []byte) {
	fd := nodeFixedDataOffset(r, p, off)
	p[fd] = byte(len(nulTerminated))
	copy(p[fd+1:], nulTerminated)
}

func binaryPayload(r *Registry, p page, off int) []byte {
	fd := nodeFixedDataOffset(r, p, off)
	n := int(p[fd])
	return p[fd+1 : fd+1+n]
}
func setBinaryPayload(r *Registry, p page, off int, data []byte) {
	fd := nodeFixedDataOffset(r, p, off)
	p[fd] = byte(len(data))
	copy(p[fd+1:], data)
}

func linkTarget(r *Registry, p page, off int) Offset {
	return r.getRef(p, nodeFixedDataOffset(r, p, off))
}
func setLinkTarget(r *Registry, p page, off int, v Offset) {
	r.putRef(p, nodeFixedDataOffset(r, p, off), v)
}

// nodeTotalSize computes the 4-byte-aligned total size a node of type t,
// with the given name length and variable-tail length (string/binary
// payload size including any trailing NUL; ignored for other types) would
// occupy, for sizing the allocNode/resizeNode call.
func nodeTotalSize(t NodeType, nameLen int, tailLen int) int {
	fixedStart := align4(nodeOffName + nameLen)
	var fixedLen int
	switch t {
	case NodeKey:
		fixedLen = keyFixedSize
	case NodeInt32:
		fixedLen = 4
	case NodeInt64, NodeDouble:
		fixedLen = 8
	case NodeString, NodeBinary:
		fixedLen = 1 + tailLen
	case NodeLink:
		fixedLen = 8
	}
	return align4(fixedStart + fixedLen)
}

// initNode stamps the common node header fields into a freshly allocated
// node at off: zero balance factor, type, empty children, and name.
func initNode(r *Registry, p page, off int, t NodeType, name []byte) {
	setNodeType(r, p, off, t)
	setNodeBF(r, p, off, 0)
	setNodeLeft(r, p, off, 0)
	setNodeRight(r, p, off, 0)
	setNodeName(r, p, off, name)
}
