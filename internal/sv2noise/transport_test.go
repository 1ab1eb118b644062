package sv2noise

import (
	"bytes"
	"testing"
)

func TestTransportRoundTrip(t *testing.T) {
	var key1, key2 [32]byte
	key1[0] = 1
	key2[0] = 2

	aSend, err := NewCipherState(key1)
	if err != nil {
		t.Fatal(err)
	}
	aRecv, err := NewCipherState(key2)
	if err != nil {
		t.Fatal(err)
	}
	bSend, err := NewCipherState(key2)
	if err != nil {
		t.Fatal(err)
	}
	bRecv, err := NewCipherState(key1)
	if err != nil {
		t.Fatal(err)
	}

	pipe := &bytes.Buffer{}
	a := NewTransport(nil, pipe, aSend, aRecv)
	b := NewTransport(pipe, nil, bSend, bRecv)

	if err := a.WriteMessage([]byte("setup-connection-frame")); err != nil {
		t.Fatal(err)
	}
	got, err := b.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("setup-connection-frame")) {
		t.Fatalf("roundtrip mismatch: got %q", got)
	}
}

func TestHandshakeMessageFramingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHandshakeMessage(&buf, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := WriteHandshakeMessage(&buf, []byte("world")); err != nil {
		t.Fatal(err)
	}
	got1, err := ReadHandshakeMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got2, err := ReadHandshakeMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got1, []byte("hello")) || !bytes.Equal(got2, []byte("world")) {
		t.Fatalf("unexpected messages: %q, %q", got1, got2)
	}
}
