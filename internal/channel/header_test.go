package channel

import "testing"

func TestMerkleRootNoBranchesReturnsCoinbaseTxID(t *testing.T) {
	txid := [32]byte{1, 2, 3}
	got := merkleRoot(txid, nil)
	if got != txid {
		t.Fatalf("expected merkle root with no branches to equal coinbase txid")
	}
}

func TestMerkleRootFoldsBranches(t *testing.T) {
	txid := [32]byte{1}
	branch := [32]byte{2}
	got := merkleRoot(txid, [][32]byte{branch})
	want := sha256dPair(txid, branch)
	if got != want {
		t.Fatalf("merkle root mismatch")
	}
}

func sha256dPair(a, b [32]byte) [32]byte {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return sha256d(buf[:])
}

func TestBuildHeaderLength(t *testing.T) {
	h := buildHeader(1, [32]byte{}, [32]byte{}, 2, 3, 4)
	if len(h) != 80 {
		t.Fatalf("expected 80-byte header, got %d", len(h))
	}
}

func TestMerkleRootForExtranonceMatchesManualComputation(t *testing.T) {
	j := NewJob(1, 1, [32]byte{}, 0, 0, false, [][32]byte{{9}}, []byte("prefix-"), []byte("-suffix"))
	extranonce := []byte{0xaa, 0xbb, 0xcc, 0xdd}

	got := MerkleRootForExtranonce(j, extranonce)

	coinbase := append(append(append([]byte{}, j.CoinbaseTxPrefix...), extranonce...), j.CoinbaseTxSuffix...)
	txid := sha256d(coinbase)
	want := sha256dPair(txid, j.MerklePath[0])
	if got != want {
		t.Fatalf("merkle root mismatch: got %x want %x", got, want)
	}
}

func TestReverse32RoundTrip(t *testing.T) {
	var in [32]byte
	for i := range in {
		in[i] = byte(i)
	}
	got := reverse32(reverse32(in))
	if got != in {
		t.Fatalf("reverse32 should be its own inverse")
	}
}
