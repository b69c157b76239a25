package x3dh

import (
	"bytes"
	"fmt"

	"e2e_messaging/internal/cryptographic/dh"
	"e2e_messaging/internal/cryptographic/kdf"
	"e2e_messaging/internal/model"
)

const (
	sharedKeySize = 32
	info          = "e2e_messaging/X3DH"
)

type (
	X3DHBase struct {
	}

	X3DHSender struct {
		*X3DHBase
	}

	X3DHReceiver struct {
		*X3DHBase
	}
)

// GenerateShareKey runs HKDF over F || DH1 || DH2 || DH3 [|| DH4] with a zero salt,
// F being 32 0xFF bytes as in the X3DH paper.
func (s *X3DHBase) GenerateShareKey(dh1, dh2, dh3, dh4 []byte) ([]byte, error) {
	ikm := make([]byte, 0, 32*5)
	ikm = append(ikm, bytes.Repeat([]byte{0xFF}, 32)...)
	ikm = append(ikm, dh1...)
	ikm = append(ikm, dh2...)
	ikm = append(ikm, dh3...)
	if dh4 != nil {
		ikm = append(ikm, dh4...)
	}

	sk := make([]byte, sharedKeySize)
	salt := make([]byte, 32)
	if _, err := kdf.HKDF(ikm, salt, []byte(info), sk); err != nil {
		return nil, err
	}
	clear(ikm)
	return sk, nil
}

func (s *X3DHSender) GenerateShareKey(skb *model.SenderKeyBundle) ([]byte, error) {
	dh1, err := dh.X25519SharedSecret(skb.IKPrivA, skb.SPKPubB)
	if err != nil {
		return nil, fmt.Errorf("dh1: %w", err)
	}

	dh2, err := dh.X25519SharedSecret(skb.EKPrivA, skb.IKPubB)
	if err != nil {
		return nil, fmt.Errorf("dh2: %w", err)
	}

	dh3, err := dh.X25519SharedSecret(skb.EKPrivA, skb.SPKPubB)
	if err != nil {
		return nil, fmt.Errorf("dh3: %w", err)
	}

	var dh4 []byte
	if skb.OTKPubB != nil {
		dh4, err = dh.X25519SharedSecret(skb.EKPrivA, skb.OTKPubB)
		if err != nil {
			return nil, fmt.Errorf("dh4: %w", err)
		}
	}

	return s.X3DHBase.GenerateShareKey(dh1, dh2, dh3, dh4)
}

func (s *X3DHReceiver) GenerateShareKey(rkb *model.ReceiverKeyBundle) ([]byte, error) {
	dh1, err := dh.X25519SharedSecret(rkb.SPKPrivB, rkb.IKPubA)
	if err != nil {
		return nil, fmt.Errorf("dh1: %w", err)
	}

	dh2, err := dh.X25519SharedSecret(rkb.IKPrivB, rkb.EKPubA)
	if err != nil {
		return nil, fmt.Errorf("dh2: %w", err)
	}

	dh3, err := dh.X25519SharedSecret(rkb.SPKPrivB, rkb.EKPubA)
	if err != nil {
		return nil, fmt.Errorf("dh3: %w", err)
	}

	var dh4 []byte
	if rkb.OTKPrivB != nil {
		dh4, err = dh.X25519SharedSecret(rkb.OTKPrivB, rkb.EKPubA)
		if err != nil {
			return nil, fmt.Errorf("dh4: %w", err)
		}
	}

	return s.X3DHBase.GenerateShareKey(dh1, dh2, dh3, dh4)
}
