// Package sealed protects local state at rest with a passphrase.
//
// A key is derived per blob with scrypt over a random salt and the payload is
// sealed with ChaCha20-Poly1305. The salt doubles as associated data.
package sealed

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const formatVersion = 1

var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted blob")

type blob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

type Params struct {
	N, R, P int
}

// DefaultParams matches the interactive scrypt recommendation.
var DefaultParams = Params{N: 1 << 15, R: 8, P: 1}

func Seal(passphrase string, raw []byte, p Params) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return json.Marshal(blob{
		V:      formatVersion,
		Salt:   salt,
		N:      p.N,
		R:      p.R,
		P:      p.P,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, raw, salt),
	})
}

func Open(passphrase string, b []byte) ([]byte, error) {
	var bl blob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, err
	}
	if bl.V > formatVersion {
		return nil, fmt.Errorf("unsupported sealed blob version %d", bl.V)
	}

	key, err := scrypt.Key([]byte(passphrase), bl.Salt, bl.N, bl.R, bl.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(bl.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	pt, err := aead.Open(nil, bl.Nonce, bl.Cipher, bl.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
