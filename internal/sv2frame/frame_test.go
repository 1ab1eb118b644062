package sv2frame

import (
	"bytes"
	"io"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{ExtensionType: 0x0000, MsgType: 0x00, Payload: []byte{1, 2, 3, 4}}
	buf, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Read(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	if got.ExtensionType != f.ExtensionType || got.MsgType != f.MsgType || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, f)
	}
}

func TestTwoFramesNoResidue(t *testing.T) {
	a := Frame{ExtensionType: 1, MsgType: 0x10, Payload: []byte("a")}
	b := Frame{ExtensionType: 2, MsgType: 0x20, Payload: []byte("bb")}

	var buf bytes.Buffer
	if err := Write(&buf, a); err != nil {
		t.Fatal(err)
	}
	if err := Write(&buf, b); err != nil {
		t.Fatal(err)
	}

	got1, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got2, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got1.MsgType != a.MsgType || got2.MsgType != b.MsgType {
		t.Fatalf("frame order mismatch: %+v, %+v", got1, got2)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no residue, %d bytes remain", buf.Len())
	}

	if _, err := Read(&buf); err != io.EOF {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestChannelBit(t *testing.T) {
	f := Frame{ExtensionType: ChannelBit | 0x0005}
	if !f.HasChannelBit() {
		t.Fatal("expected channel bit set")
	}
	if f.Extension() != 0x0005 {
		t.Fatalf("expected extension 0x0005, got %#x", f.Extension())
	}
}

func TestFrameTooLarge(t *testing.T) {
	f := Frame{Payload: make([]byte, MaxPayloadLen+1)}
	if _, err := Encode(f); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}
