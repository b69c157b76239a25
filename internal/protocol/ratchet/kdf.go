package ratchet

import (
	"encoding/hex"

	"e2e_messaging/internal/cryptographic/kdf"
)

const (
	keySize       = 32
	sessionIDSize = 16

	infoRoot           = "RootKey"
	infoSessionID      = "SessionID"
	infoInitiatorChain = "InitiatorChain"
	infoResponderChain = "ResponderChain"
	infoMessageKey     = "MessageKey"
	infoChainKey       = "ChainKey"
)

// KDFChainKey derives a single-use message key and the next chain key from chainKey.
// The two outputs use independent HKDF info labels.
func KDFChainKey(chainKey []byte) (nextChainKey, msgKey []byte, err error) {
	msgKey, err = kdf.Derive(chainKey, infoMessageKey, keySize)
	if err != nil {
		return nil, nil, err
	}
	nextChainKey, err = kdf.Derive(chainKey, infoChainKey, keySize)
	if err != nil {
		return nil, nil, err
	}
	return nextChainKey, msgKey, nil
}

type rootMaterial struct {
	rootKey        []byte
	sessionID      string
	initiatorChain []byte
	responderChain []byte
}

// deriveRoot expands a negotiated secret into everything both sides need.
func deriveRoot(sharedSecret []byte) (*rootMaterial, error) {
	root, err := kdf.Derive(sharedSecret, infoRoot, keySize)
	if err != nil {
		return nil, err
	}
	sid, err := kdf.Derive(root, infoSessionID, sessionIDSize)
	if err != nil {
		return nil, err
	}
	ic, err := kdf.Derive(root, infoInitiatorChain, keySize)
	if err != nil {
		return nil, err
	}
	rc, err := kdf.Derive(root, infoResponderChain, keySize)
	if err != nil {
		return nil, err
	}
	return &rootMaterial{
		rootKey:        root,
		sessionID:      hex.EncodeToString(sid),
		initiatorChain: ic,
		responderChain: rc,
	}, nil
}
