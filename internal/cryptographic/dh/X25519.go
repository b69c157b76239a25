package dh

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// NewX25519KeyPair generates a clamped X25519 key pair.
func NewX25519KeyPair() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, fmt.Errorf("failed to generate private key: %w", err)
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	curve25519.ScalarBaseMult(&pub, &priv)
	return priv, pub, nil
}

// X25519SharedSecret computes priv * pub. Both keys must be 32 bytes.
func X25519SharedSecret(priv, pub []byte) ([]byte, error) {
	if len(priv) != curve25519.ScalarSize || len(pub) != curve25519.PointSize {
		return nil, fmt.Errorf("x25519: bad key length priv=%d pub=%d", len(priv), len(pub))
	}
	return curve25519.X25519(priv, pub)
}

// PublicKey recovers the public key of a raw X25519 private key.
func PublicKey(priv []byte) ([]byte, error) {
	k, err := ConvertToECDHFormat(priv)
	if err != nil {
		return nil, err
	}
	return k.PublicKey().Bytes(), nil
}

func ConvertToECDHFormat(privKey []byte) (*ecdh.PrivateKey, error) {
	return ecdh.X25519().NewPrivateKey(privKey)
}
