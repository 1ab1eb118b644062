package pool

import (
	"encoding/binary"
	"sync/atomic"
)

// extranonceAllocator hands out unique, disjoint extranonce prefixes to
// new channels so no two channels ever search the same nonce space.
// Grounded on the teacher's own "bump a counter, address the miner
// session by it" convention (master.go's ID-counters for workers/jobs);
// M45-goPool pulls its extranonce1 from the session's upstream SV1
// connection instead, which this pool has no equivalent of since it
// terminates SV2 directly.
type extranonceAllocator struct {
	next       uint32
	prefixSize int
}

func newExtranonceAllocator(prefixSize int) *extranonceAllocator {
	if prefixSize <= 0 {
		prefixSize = 4
	}
	return &extranonceAllocator{prefixSize: prefixSize}
}

// allocate returns the next prefix, left-padded/truncated to
// prefixSize bytes (4 bytes holds 2^32 channels, ample headroom).
func (a *extranonceAllocator) allocate() []byte {
	n := atomic.AddUint32(&a.next, 1)
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, n)
	if a.prefixSize <= 4 {
		return buf[4-a.prefixSize:]
	}
	out := make([]byte, a.prefixSize)
	copy(out[a.prefixSize-4:], buf)
	return out
}
