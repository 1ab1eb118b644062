package lockingkey

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func TestParseValidKey(t *testing.T) {
	priv := make([]byte, 32)
	priv[31] = 1 // a zero scalar would give the point at infinity, which has no valid encoding
	_, pub := btcec.PrivKeyFromBytes(priv)
	var raw [33]byte
	copy(raw[:], pub.SerializeCompressed())

	k, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if k.IsZero() {
		t.Fatal("expected non-zero key")
	}
	if k.Bytes() != raw {
		t.Fatalf("Bytes() mismatch: got %x want %x", k.Bytes(), raw)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	var raw [33]byte
	garbage, _ := hex.DecodeString("ff" + "00000000000000000000000000000000000000000000000000000000000000")
	copy(raw[:], garbage)

	if _, err := Parse(raw); err == nil {
		t.Fatal("expected error for off-curve/invalid point")
	}
}
