package ratchet

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/cryptographic/encryption"
	"e2e_messaging/internal/model"
)

// MaxSkip bounds the number of stored message keys per receiving chain.
const MaxSkip = 1000

type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	if r == Responder {
		return "responder"
	}
	return "initiator"
}

var errChainUninitialised = errors.New("ratchet chain key is uninitialised")

type (
	// Engine is the leaf crypto component: AEAD, randomness and chain advancement.
	// It keeps no state of its own, all chain material is passed in and returned.
	Engine struct {
		rand io.Reader
		now  func() time.Time
	}

	Option func(*Engine)
)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.rand = r }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rand: rand.Reader,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) GenerateRandomBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("generate random bytes: negative length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(e.rand, b); err != nil {
		return nil, apperrors.Crypto("read random bytes", err)
	}
	return b, nil
}

// EncryptMessage seals plaintext under key; a fresh nonce is drawn for every call.
func (e *Engine) EncryptMessage(plaintext, key, aad []byte) (ciphertext, nonce []byte, err error) {
	ciphertext, nonce, err = encryption.Seal(key, plaintext, aad)
	if err != nil {
		return nil, nil, apperrors.WithCause(apperrors.ErrEncryptionFailed, err)
	}
	return ciphertext, nonce, nil
}

// DecryptMessage never returns plaintext when authentication fails.
func (e *Engine) DecryptMessage(ciphertext, key, nonce, aad []byte) ([]byte, error) {
	plain, err := encryption.Open(key, ciphertext, nonce, aad)
	if err != nil {
		return nil, apperrors.WithCause(apperrors.ErrDecryptionFailed, err)
	}
	return plain, nil
}

// AdvanceChain derives the key for chain.MessageNumber and returns the chain one step further.
// The input chain is not modified.
func (e *Engine) AdvanceChain(chain model.ChainState) ([]byte, model.ChainState, error) {
	next := chain.Clone()
	mk, err := step(&next)
	if err != nil {
		return nil, chain, err
	}
	return mk, next, nil
}

// MessageKey returns the key for message n on a receiving chain, storing keys
// for any numbers it skips over. Keys below the counter come from the skipped set
// and can be used only once.
func (e *Engine) MessageKey(chain model.ChainState, n uint32) ([]byte, model.ChainState, error) {
	next := chain.Clone()

	if n < next.MessageNumber {
		mk, ok := next.Skipped[n]
		if !ok {
			return nil, chain, apperrors.ErrMessageKeyUsed
		}
		delete(next.Skipped, n)
		if len(next.Skipped) == 0 {
			next.Skipped = nil
		}
		return mk, next, nil
	}

	gap := int(n - next.MessageNumber)
	if gap > MaxSkip || len(next.Skipped)+gap > MaxSkip {
		return nil, chain, apperrors.WithCause(apperrors.ErrSkipLimit,
			fmt.Errorf("need %d keys, have %d stored, max %d", gap, len(next.Skipped), MaxSkip))
	}

	for next.MessageNumber < n {
		num := next.MessageNumber
		mk, err := step(&next)
		if err != nil {
			return nil, chain, err
		}
		if next.Skipped == nil {
			next.Skipped = make(map[uint32][]byte)
		}
		next.Skipped[num] = mk
	}

	mk, err := step(&next)
	if err != nil {
		return nil, chain, err
	}
	return mk, next, nil
}

// InitializeSession expands a negotiated shared secret into a session. Both roles
// derive the same root and session id; each side's sending chain is the other's
// receiving chain.
func (e *Engine) InitializeSession(sharedSecret []byte, role Role) (*model.SessionState, error) {
	if len(sharedSecret) == 0 {
		return nil, apperrors.Crypto("initialize session", errors.New("empty shared secret"))
	}
	rm, err := deriveRoot(sharedSecret)
	if err != nil {
		return nil, apperrors.Crypto("derive root key", err)
	}

	sending, receiving := rm.initiatorChain, rm.responderChain
	if role == Responder {
		sending, receiving = rm.responderChain, rm.initiatorChain
	}

	now := e.now()
	return &model.SessionState{
		SessionID:    rm.sessionID,
		RootKey:      rm.rootKey,
		SendingChain: model.ChainState{ChainKey: sending},
		ReceivingChains: map[string]*model.ChainState{
			rm.sessionID: {ChainKey: receiving},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func step(c *model.ChainState) ([]byte, error) {
	if len(c.ChainKey) == 0 {
		return nil, apperrors.Crypto("advance chain", errChainUninitialised)
	}
	nextCK, mk, err := KDFChainKey(c.ChainKey)
	if err != nil {
		return nil, apperrors.Crypto("advance chain", err)
	}
	c.ChainKey = nextCK
	c.MessageNumber++
	return mk, nil
}
