package sv2noise

// HandshakeState drives the NX pattern: the initiator (any SV2 client
// — the translator dialing the pool, or the pool's mint client dialing
// mintd; the mint never dials the pool) has no static key; the
// responder (the pool, or mintd on the mint-quote link) presents a
// long-term static key the initiator is expected to have out-of-band
// verification for (a signed certificate over that key, per spec
// §4.2 — certificate verification is a caller concern, this type only
// runs the DH/AEAD mechanics).
//
//	-> e
//	<- e, ee, s, es
type HandshakeState struct {
	ss             *symmetricState
	localStatic    *KeyPair
	localEphemeral *KeyPair
	remoteStatic   [DHKeySize]byte
	remoteEmpheral [DHKeySize]byte
	initiator      bool
	msgIndex       int
}

func NewInitiatorHandshake() (*HandshakeState, error) {
	eph, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &HandshakeState{ss: newSymmetricState(), localEphemeral: eph, initiator: true}, nil
}

func NewResponderHandshake(staticKey *KeyPair) (*HandshakeState, error) {
	if staticKey == nil {
		return nil, ErrHandshakeFailed
	}
	eph, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &HandshakeState{ss: newSymmetricState(), localStatic: staticKey, localEphemeral: eph, initiator: false}, nil
}

// WriteMessage produces this side's next handshake message, carrying
// an optional payload. The callers in internal/setup pass nil and send
// SetupConnection as the first frame after the handshake.
func (hs *HandshakeState) WriteMessage(payload []byte) ([]byte, error) {
	var msg []byte
	if hs.initiator {
		if hs.msgIndex != 0 {
			return nil, ErrHandshakeFailed
		}
		hs.ss.mixHash(hs.localEphemeral.Public[:])
		msg = append(msg, hs.localEphemeral.Public[:]...)
		enc, err := hs.ss.encryptAndHash(payload)
		if err != nil {
			return nil, err
		}
		msg = append(msg, enc...)
	} else {
		if hs.msgIndex != 0 {
			return nil, ErrHandshakeFailed
		}
		hs.ss.mixHash(hs.localEphemeral.Public[:])
		msg = append(msg, hs.localEphemeral.Public[:]...)

		shared, err := hs.localEphemeral.dh(hs.remoteEmpheral)
		if err != nil {
			return nil, err
		}
		if err := hs.ss.mixKey(shared[:]); err != nil {
			return nil, err
		}

		encStatic, err := hs.ss.encryptAndHash(hs.localStatic.Public[:])
		if err != nil {
			return nil, err
		}
		msg = append(msg, encStatic...)

		shared, err = hs.localStatic.dh(hs.remoteEmpheral)
		if err != nil {
			return nil, err
		}
		if err := hs.ss.mixKey(shared[:]); err != nil {
			return nil, err
		}

		enc, err := hs.ss.encryptAndHash(payload)
		if err != nil {
			return nil, err
		}
		msg = append(msg, enc...)
	}
	hs.msgIndex++
	return msg, nil
}

// ReadMessage consumes the peer's handshake message and returns its
// decrypted payload.
func (hs *HandshakeState) ReadMessage(message []byte) ([]byte, error) {
	if hs.initiator {
		if hs.msgIndex != 1 {
			return nil, ErrHandshakeFailed
		}
		if len(message) < DHKeySize {
			return nil, ErrInvalidMessage
		}
		copy(hs.remoteEmpheral[:], message[:DHKeySize])
		hs.ss.mixHash(hs.remoteEmpheral[:])
		message = message[DHKeySize:]

		shared, err := hs.localEphemeral.dh(hs.remoteEmpheral)
		if err != nil {
			return nil, err
		}
		if err := hs.ss.mixKey(shared[:]); err != nil {
			return nil, err
		}

		if len(message) < DHKeySize+TagSize {
			return nil, ErrInvalidMessage
		}
		decStatic, err := hs.ss.decryptAndHash(message[:DHKeySize+TagSize])
		if err != nil {
			return nil, err
		}
		copy(hs.remoteStatic[:], decStatic)
		message = message[DHKeySize+TagSize:]

		shared, err = hs.localEphemeral.dh(hs.remoteStatic)
		if err != nil {
			return nil, err
		}
		if err := hs.ss.mixKey(shared[:]); err != nil {
			return nil, err
		}

		payload, err := hs.ss.decryptAndHash(message)
		if err != nil {
			return nil, err
		}
		hs.msgIndex++
		return payload, nil
	}

	if hs.msgIndex != 0 {
		return nil, ErrHandshakeFailed
	}
	if len(message) < DHKeySize {
		return nil, ErrInvalidMessage
	}
	copy(hs.remoteEmpheral[:], message[:DHKeySize])
	hs.ss.mixHash(hs.remoteEmpheral[:])
	message = message[DHKeySize:]
	return hs.ss.decryptAndHash(message)
}

// IsComplete reports whether both handshake messages have been
// exchanged from this side's perspective.
func (hs *HandshakeState) IsComplete() bool {
	if hs.initiator {
		return hs.msgIndex >= 2
	}
	return hs.msgIndex >= 1
}

// Split returns (send, recv) transport ciphers for this side.
func (hs *HandshakeState) Split() (send, recv *CipherState, err error) {
	if !hs.IsComplete() {
		return nil, nil, ErrNotEstablished
	}
	c1, c2, err := hs.ss.split()
	if err != nil {
		return nil, nil, err
	}
	if hs.initiator {
		return c1, c2, nil
	}
	return c2, c1, nil
}

// RemoteStatic returns the peer's long-term static key, available
// only after the handshake completes; the caller is responsible for
// verifying it against a certificate before trusting the connection.
func (hs *HandshakeState) RemoteStatic() [DHKeySize]byte {
	return hs.remoteStatic
}
