package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

var preKeyContext = []byte("e2e_messaging/SignedPreKey")

// NewSigningKey returns an Ed25519 (pub, priv) pair used to vouch for signed prekeys.
func NewSigningKey() (pub, priv []byte, err error) {
	pub, priv, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("ed25519.GenerateKey: %w", err)
	}
	return pub, priv, nil
}

// SignPreKey signs the prekey's id together with its public key so neither can be swapped.
func SignPreKey(priv []byte, keyID uint32, preKeyPub []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	return ed25519.Sign(ed25519.PrivateKey(priv), preKeyMessage(keyID, preKeyPub)), nil
}

func VerifyPreKey(pub []byte, keyID uint32, preKeyPub, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), preKeyMessage(keyID, preKeyPub), sig)
}

func preKeyMessage(keyID uint32, preKeyPub []byte) []byte {
	msg := make([]byte, 0, len(preKeyContext)+4+len(preKeyPub))
	msg = append(msg, preKeyContext...)
	msg = binary.BigEndian.AppendUint32(msg, keyID)
	return append(msg, preKeyPub...)
}
