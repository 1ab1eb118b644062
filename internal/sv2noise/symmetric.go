package sv2noise

// symmetricState tracks the running handshake hash and chaining key,
// matching Noise's SymmetricState object.
type symmetricState struct {
	chainingKey [32]byte
	h           [32]byte
	cipher      *CipherState
}

func newSymmetricState() *symmetricState {
	ss := &symmetricState{}
	name := []byte(ProtocolName)
	if len(name) <= 32 {
		copy(ss.h[:], name)
	} else {
		ss.h = sha256Hash(name)
	}
	ss.chainingKey = ss.h
	return ss
}

func (ss *symmetricState) mixHash(data []byte) {
	ss.h = sha256Hash(ss.h[:], data)
}

func (ss *symmetricState) mixKey(ikm []byte) error {
	k1, k2, err := hkdfDerive(ss.chainingKey[:], ikm)
	if err != nil {
		return err
	}
	ss.chainingKey = k1
	cs, err := NewCipherState(k2)
	if err != nil {
		return err
	}
	ss.cipher = cs
	return nil
}

func (ss *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	if ss.cipher == nil {
		ss.mixHash(plaintext)
		return plaintext, nil
	}
	ciphertext, err := ss.cipher.Encrypt(plaintext, ss.h[:])
	if err != nil {
		return nil, err
	}
	ss.mixHash(ciphertext)
	return ciphertext, nil
}

func (ss *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	if ss.cipher == nil {
		ss.mixHash(ciphertext)
		return ciphertext, nil
	}
	plaintext, err := ss.cipher.Decrypt(ciphertext, ss.h[:])
	if err != nil {
		return nil, err
	}
	ss.mixHash(ciphertext)
	return plaintext, nil
}

// split derives the two directional transport ciphers once the
// handshake's final MixKey has run.
func (ss *symmetricState) split() (*CipherState, *CipherState, error) {
	k1, k2, err := hkdfDerive(ss.chainingKey[:], nil)
	if err != nil {
		return nil, nil, err
	}
	c1, err := NewCipherState(k1)
	if err != nil {
		return nil, nil, err
	}
	c2, err := NewCipherState(k2)
	if err != nil {
		return nil, nil, err
	}
	return c1, c2, nil
}
