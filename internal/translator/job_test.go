package translator

import (
	"encoding/hex"
	"testing"

	"github.com/hashpool/hashpool/internal/channel"
)

func TestJobIDHexRoundTrip(t *testing.T) {
	for _, id := range []uint32{0, 1, 0xdeadbeef, 0xffffffff} {
		s := jobIDHex(id)
		if len(s) != 8 {
			t.Fatalf("jobIDHex(%d) = %q, want 8 hex chars", id, s)
		}
		got, err := parseJobID(s)
		if err != nil {
			t.Fatalf("parseJobID(%q): %v", s, err)
		}
		if got != id {
			t.Fatalf("round trip: got %d, want %d", got, id)
		}
	}
}

func TestParseJobIDRejectsGarbage(t *testing.T) {
	if _, err := parseJobID("not-hex"); err == nil {
		t.Fatal("expected error for non-hex job id")
	}
}

// referenceSwapReverse is an independent reimplementation of the
// swap32-then-reverse transform, used to check sv1PrevHashHex against
// rather than a hand-computed hex literal.
func referenceSwapReverse(prevHash [32]byte) string {
	var swapped [32]byte
	for w := 0; w < 8; w++ {
		for b := 0; b < 4; b++ {
			swapped[w*4+b] = prevHash[w*4+(3-b)]
		}
	}
	var out [32]byte
	for i := 0; i < 32; i++ {
		out[i] = swapped[31-i]
	}
	return hex.EncodeToString(out[:])
}

func TestSv1PrevHashHexSwapsAndReverses(t *testing.T) {
	var prevHash [32]byte
	for i := range prevHash {
		prevHash[i] = byte(i)
	}
	got := sv1PrevHashHex(prevHash)
	want := referenceSwapReverse(prevHash)
	if got != want {
		t.Fatalf("sv1PrevHashHex(%x) = %s, want %s", prevHash, got, want)
	}
}

func TestMerkleBranchHexPreservesOrder(t *testing.T) {
	path := [][32]byte{{1}, {2}, {3}}
	out := merkleBranchHex(path)
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	if out[0][:2] != "01" || out[1][:2] != "02" || out[2][:2] != "03" {
		t.Fatalf("unexpected order: %v", out)
	}
}

func TestNotifyParamsShape(t *testing.T) {
	job := channel.NewJob(7, 1, [32]byte{9}, 100, 0x1d00ffff, true, [][32]byte{{1}}, []byte("pre"), []byte("suf"))
	params := notifyParams(job, true)
	if len(params) != 9 {
		t.Fatalf("expected 9 params, got %d", len(params))
	}
	if params[0] != jobIDHex(7) {
		t.Fatalf("job id mismatch: %v", params[0])
	}
	if params[8] != true {
		t.Fatalf("expected clean_jobs true, got %v", params[8])
	}
	branch, ok := params[4].([]string)
	if !ok || len(branch) != 1 {
		t.Fatalf("expected one-entry merkle branch, got %v", params[4])
	}
}
