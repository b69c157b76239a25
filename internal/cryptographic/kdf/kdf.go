package kdf

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF fills buffer from HKDF-SHA256(secret, salt, info).
func HKDF(secret, salt, info, buffer []byte) (int, error) {
	h := hkdf.New(sha256.New, secret, salt, info)
	return io.ReadFull(h, buffer)
}

// Derive returns n bytes of HKDF-SHA256 output with a nil salt.
func Derive(secret []byte, info string, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := HKDF(secret, nil, []byte(info), out); err != nil {
		return nil, err
	}
	return out, nil
}
