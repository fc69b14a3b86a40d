package avlreg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func allocTestNode(t *testing.T, r *Registry, p page, typ NodeType, name []byte, tailLen int) int {
	t.Helper()
	size := nodeTotalSize(typ, len(name), tailLen)
	off, _, err := r.allocNode(p, size)
	require.NoError(t, err)
	setNodeSize(r, p, off, uint16(size))
	initNode(r, p, off, typ, name)
	return off
}

func TestNodeCompositeHeaderRoundTrip(t *testing.T) {
	r := &Registry{}
	p := make(page, PageSize)
	r.initDataPage(p, Offset(PageSize))
	off := allocTestNode(t, r, p, NodeInt32, []byte("retries"), 0)

	require.Equal(t, NodeInt32, nodeType(r, p, off))
	require.Equal(t, int8(0), nodeBF(r, p, off))

	setNodeBF(r, p, off, -1)
	require.Equal(t, int8(-1), nodeBF(r, p, off))
	setNodeBF(r, p, off, 1)
	require.Equal(t, int8(1), nodeBF(r, p, off))
	require.Equal(t, NodeInt32, nodeType(r, p, off), "changing BF must not disturb the type bits")

	require.Equal(t, "retries", string(nodeName(r, p, off)))
}

func TestNodeSizeRoundTripsThroughCompositeBits(t *testing.T) {
	r := &Registry{}
	p := make(page, PageSize)
	r.initDataPage(p, Offset(PageSize))
	off := allocTestNode(t, r, p, NodeKey, []byte("app"), 0)

	size := nodeTotalSize(NodeKey, len("app"), 0)
	require.Equal(t, uint16(size), nodeSize(r, p, off))
	setNodeType(r, p, off, NodeKey)
	require.Equal(t, uint16(size), nodeSize(r, p, off), "changing type must not disturb the size bits")
}

func TestInt32ValueRoundTrip(t *testing.T) {
	r := &Registry{}
	p := make(page, PageSize)
	r.initDataPage(p, Offset(PageSize))
	off := allocTestNode(t, r, p, NodeInt32, []byte("n"), 0)

	setInt32Value(r, p, off, -12345)
	require.Equal(t, int32(-12345), int32Value(r, p, off))
}

func TestInt64ValueRoundTripAcrossHalves(t *testing.T) {
	r := &Registry{}
	p := make(page, PageSize)
	r.initDataPage(p, Offset(PageSize))
	off := allocTestNode(t, r, p, NodeInt64, []byte("big"), 0)

	v := int64(-1)
	setInt64Value(r, p, off, v)
	require.Equal(t, v, int64Value(r, p, off))

	v2 := int64(1)<<40 + 7
	setInt64Value(r, p, off, v2)
	require.Equal(t, v2, int64Value(r, p, off))
}

func TestDoubleValueRoundTrip(t *testing.T) {
	r := &Registry{}
	p := make(page, PageSize)
	r.initDataPage(p, Offset(PageSize))
	off := allocTestNode(t, r, p, NodeDouble, []byte("pi"), 0)

	setDoubleValue(r, p, off, 3.14159265)
	require.InDelta(t, 3.14159265, doubleValue(r, p, off), 1e-12)
}

func TestStringPayloadRoundTrip(t *testing.T) {
	r := &Registry{}
	p := make(page, PageSize)
	r.initDataPage(p, Offset(PageSize))
	payload := []byte("0.1.0\x00")
	off := allocTestNode(t, r, p, NodeString, []byte("version"), len(payload))

	setStringPayload(r, p, off, payload)
	require.Equal(t, payload, stringPayload(r, p, off))
}

func TestBinaryPayloadRoundTrip(t *testing.T) {
	r := &Registry{}
	p := make(page, PageSize)
	r.initDataPage(p, Offset(PageSize))
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}
	off := allocTestNode(t, r, p, NodeBinary, []byte("blob"), len(payload))

	setBinaryPayload(r, p, off, payload)
	require.Equal(t, payload, binaryPayload(r, p, off))
}

func TestLinkTargetRoundTrip(t *testing.T) {
	r := &Registry{}
	p := make(page, PageSize)
	r.initDataPage(p, Offset(PageSize))
	off := allocTestNode(t, r, p, NodeLink, []byte("shortcut"), 0)

	target := Offset(8192 + 40)
	setLinkTarget(r, p, off, target)
	require.Equal(t, target, linkTarget(r, p, off))
}

func TestKeyFixedFieldsRoundTrip(t *testing.T) {
	r := &Registry{}
	p := make(page, PageSize)
	r.initDataPage(p, Offset(PageSize))
	off := allocTestNode(t, r, p, NodeKey, []byte("app"), 0)

	setKeyChildrenRoot(r, p, off, Offset(4096+26))
	setKeyValuesRoot(r, p, off, Offset(4096+50))
	setKeyDepth(r, p, off, 3)

	require.Equal(t, Offset(4096+26), keyChildrenRoot(r, p, off))
	require.Equal(t, Offset(4096+50), keyValuesRoot(r, p, off))
	require.Equal(t, uint16(3), keyDepth(r, p, off))
}

func TestNodeTotalSizeIsFourByteAligned(t *testing.T) {
	for _, tc := range []struct {
		typ     NodeType
		nameLen int
		tailLen int
	}{
		{NodeKey, 3, 0},
		{NodeInt32, 1, 0},
		{NodeInt64, 7, 0},
		{NodeDouble, 0, 0},
		{NodeString, 5, 11},
		{NodeBinary, 240, 250},
		{NodeLink, 8, 0},
	} {
		size := nodeTotalSize(tc.typ, tc.nameLen, tc.tailLen)
		require.Zero(t, size%4, "type %v name %d tail %d: size %d not 4-byte aligned", tc.typ, tc.nameLen, tc.tailLen, size)
	}
}
