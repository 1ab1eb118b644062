package channel

import "crypto/sha256"

// sha256d is Bitcoin's double SHA-256, used for both the merkle-tree
// folding step and the final header hash. Hand-rolled on crypto/sha256
// (stdlib): the hash function is fixed by Bitcoin consensus, matching
// the same stdlib-only choice made in internal/target (see DESIGN.md).
func sha256d(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

// merkleRoot folds coinbaseTxID with the job's merkle path the way
// Bitcoin does: at each level the running hash is concatenated with
// the next branch and double-hashed, branch always applied on the
// right. Returns the root in the same (internal/big-endian) byte
// order as the leaves.
func merkleRoot(coinbaseTxID [32]byte, path [][32]byte) [32]byte {
	root := coinbaseTxID
	for _, branch := range path {
		var buf [64]byte
		copy(buf[:32], root[:])
		copy(buf[32:], branch[:])
		root = sha256d(buf[:])
	}
	return root
}

// buildCoinbase assembles the coinbase transaction bytes from the
// job's fixed prefix/suffix and the share's extranonce, then returns
// its double-SHA256 txid.
func buildCoinbase(prefix, extranonce, suffix []byte) [32]byte {
	buf := make([]byte, 0, len(prefix)+len(extranonce)+len(suffix))
	buf = append(buf, prefix...)
	buf = append(buf, extranonce...)
	buf = append(buf, suffix...)
	return sha256d(buf)
}

// buildHeader reconstructs the 80-byte block header:
// version(4) || prev_hash(32) || merkle_root(32) || ntime(4) || nbits(4) || nonce(4).
// All multi-byte fields are little-endian, matching Bitcoin's on-wire
// header serialization.
func buildHeader(version uint32, prevHash [32]byte, merkle [32]byte, ntime, nbits, nonce uint32) []byte {
	h := make([]byte, 80)
	putU32LE(h[0:4], version)
	copy(h[4:36], reverse32(prevHash)[:])
	copy(h[36:68], reverse32(merkle)[:])
	putU32LE(h[68:72], ntime)
	putU32LE(h[72:76], nbits)
	putU32LE(h[76:80], nonce)
	return h
}

// MerkleRootForExtranonce computes the merkle root a standard channel's
// job will resolve to once a fixed extranonce prefix is substituted
// into the coinbase, so the pool can announce it via NewMiningJob
// instead of leaving the reconstruction to the miner the way extended
// channels do.
func MerkleRootForExtranonce(j *Job, extranonce []byte) [32]byte {
	coinbaseTxID := buildCoinbase(j.CoinbaseTxPrefix, extranonce, j.CoinbaseTxSuffix)
	return merkleRoot(coinbaseTxID, j.MerklePath)
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// reverse32 flips byte order. prev_hash and merkle_root are carried
// internally in big-endian (matching U256 numeric targets) but are
// serialized into the header in Bitcoin's little-endian field order.
func reverse32(in [32]byte) [32]byte {
	var out [32]byte
	for i := 0; i < 32; i++ {
		out[i] = in[31-i]
	}
	return out
}
