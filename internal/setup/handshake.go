// Package setup factors out the per-connection bootstrap every SV2
// link performs before any domain message crosses the wire: a Noise_NX
// handshake, then a SetupConnection negotiation restricted to one
// protocol. internal/pool, internal/translator, internal/mintclient,
// and internal/mintengine each open a different kind of link (pool
// responder, translator initiator, mint-quote initiator, mint-quote
// responder) but all four performed the identical handshake and
// negotiation bytes independently; this package gives that shared
// sequence one home.
package setup

import (
	"fmt"
	"net"

	"github.com/hashpool/hashpool/internal/sv2noise"
)

// Responder runs the responder side of a Noise_NX handshake over raw,
// signing with staticKey, and returns the resulting transport.
// Grounded on internal/pool/engine.go's handshake, the first of the
// four call sites this package consolidates.
func Responder(raw net.Conn, staticKey *sv2noise.KeyPair) (*sv2noise.Transport, error) {
	hs, err := sv2noise.NewResponderHandshake(staticKey)
	if err != nil {
		return nil, fmt.Errorf("setup: new responder handshake: %w", err)
	}
	msg1, err := sv2noise.ReadHandshakeMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("setup: read handshake message 1: %w", err)
	}
	if _, err := hs.ReadMessage(msg1); err != nil {
		return nil, fmt.Errorf("setup: process handshake message 1: %w", err)
	}
	msg2, err := hs.WriteMessage(nil)
	if err != nil {
		return nil, fmt.Errorf("setup: build handshake message 2: %w", err)
	}
	if err := sv2noise.WriteHandshakeMessage(raw, msg2); err != nil {
		return nil, fmt.Errorf("setup: write handshake message 2: %w", err)
	}
	send, recv, err := hs.Split()
	if err != nil {
		return nil, fmt.Errorf("setup: split transport keys: %w", err)
	}
	return sv2noise.NewTransport(raw, raw, send, recv), nil
}

// Initiator runs the initiator side of a Noise_NX handshake over raw
// and pins the responder's long-term static key to expectedStatic, the
// out-of-band certificate check spec deployments substitute with a
// simple equality test against a configured key. Grounded on
// internal/translator/upstream.go's newUpstreamFromConn.
func Initiator(raw net.Conn, expectedStatic [sv2noise.DHKeySize]byte) (*sv2noise.Transport, error) {
	hs, err := sv2noise.NewInitiatorHandshake()
	if err != nil {
		return nil, fmt.Errorf("setup: new initiator handshake: %w", err)
	}
	msg1, err := hs.WriteMessage(nil)
	if err != nil {
		return nil, fmt.Errorf("setup: build handshake message 1: %w", err)
	}
	if err := sv2noise.WriteHandshakeMessage(raw, msg1); err != nil {
		return nil, fmt.Errorf("setup: write handshake message 1: %w", err)
	}
	msg2, err := sv2noise.ReadHandshakeMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("setup: read handshake message 2: %w", err)
	}
	if _, err := hs.ReadMessage(msg2); err != nil {
		return nil, fmt.Errorf("setup: process handshake message 2: %w", err)
	}
	if hs.RemoteStatic() != expectedStatic {
		return nil, fmt.Errorf("setup: remote static key mismatch")
	}
	send, recv, err := hs.Split()
	if err != nil {
		return nil, fmt.Errorf("setup: split transport keys: %w", err)
	}
	return sv2noise.NewTransport(raw, raw, send, recv), nil
}
