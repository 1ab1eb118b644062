package sv2noise

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Transport wraps a raw connection with the two directional ciphers
// produced by a completed handshake, sealing every message as one
// AEAD unit the way spec §4.2 requires for all post-handshake frames.
// Ciphertext-on-the-wire is length-prefixed (u16 LE) since AEAD output
// carries no inherent framing of its own.
type Transport struct {
	r    io.Reader
	w    io.Writer
	send *CipherState
	recv *CipherState
}

func NewTransport(r io.Reader, w io.Writer, send, recv *CipherState) *Transport {
	return &Transport{r: r, w: w, send: send, recv: recv}
}

const maxCiphertextLen = 65535

// WriteMessage seals plaintext and writes it as a length-prefixed
// ciphertext record.
func (t *Transport) WriteMessage(plaintext []byte) error {
	ciphertext, err := t.send.Encrypt(plaintext, nil)
	if err != nil {
		return err
	}
	if len(ciphertext) > maxCiphertextLen {
		return fmt.Errorf("sv2noise: ciphertext too large (%d bytes)", len(ciphertext))
	}
	var lenPrefix [2]byte
	binary.LittleEndian.PutUint16(lenPrefix[:], uint16(len(ciphertext)))
	if _, err := t.w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err = t.w.Write(ciphertext)
	return err
}

// ReadMessage reads one length-prefixed ciphertext record and opens it.
func (t *Transport) ReadMessage() ([]byte, error) {
	var lenPrefix [2]byte
	if _, err := io.ReadFull(t.r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(lenPrefix[:])
	ciphertext := make([]byte, n)
	if _, err := io.ReadFull(t.r, ciphertext); err != nil {
		return nil, err
	}
	return t.recv.Decrypt(ciphertext, nil)
}

// WriteHandshakeMessage writes one handshake message with the same
// length-prefix convention the post-handshake Transport uses, so a
// connection's wire format doesn't change shape at the handshake/
// transport boundary.
func WriteHandshakeMessage(w io.Writer, msg []byte) error {
	if len(msg) > maxCiphertextLen {
		return fmt.Errorf("sv2noise: handshake message too large (%d bytes)", len(msg))
	}
	var lenPrefix [2]byte
	binary.LittleEndian.PutUint16(lenPrefix[:], uint16(len(msg)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(msg)
	return err
}

// ReadHandshakeMessage reads one length-prefixed handshake message.
func ReadHandshakeMessage(r io.Reader) ([]byte, error) {
	var lenPrefix [2]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(lenPrefix[:])
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
