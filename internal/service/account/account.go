package account

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/cryptographic/dh"
	"e2e_messaging/internal/cryptographic/signature"
	"e2e_messaging/internal/model"
	accountrepo "e2e_messaging/internal/repository/account"
	"e2e_messaging/internal/utils/log"
)

const signedPreKeyID uint32 = 1

type (
	Service struct {
		repo           accountrepo.Repository
		oneTimePreKeys int
	}
)

func NewService(repo accountrepo.Repository, oneTimePreKeys int) *Service {
	if oneTimePreKeys < 0 {
		oneTimePreKeys = 0
	}
	return &Service{
		repo:           repo,
		oneTimePreKeys: oneTimePreKeys,
	}
}

func (s *Service) Repository() accountrepo.Repository {
	return s.repo
}

// GetOrCreate returns the named account, generating its key material on first use.
func (s *Service) GetOrCreate(ctx context.Context, name string) (*model.Account, error) {
	if name == "" {
		return nil, apperrors.InvalidArg("account name is required")
	}

	acc, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, apperrors.Persistence("load account", err)
	}

	if acc != nil {
		return acc, nil
	}

	acc, err = s.newAccount(name)
	if err != nil {
		return nil, err
	}

	if _, err = s.repo.Create(ctx, acc); err != nil {
		return nil, apperrors.Persistence("create account", err)
	}

	log.Info("account created",
		zap.String("name", name),
		zap.Int("one_time_pre_keys", len(acc.OneTimePreKeys)),
	)
	return acc, nil
}

// Get returns ErrAccountNotFound instead of nil for unknown names.
func (s *Service) Get(ctx context.Context, name string) (*model.Account, error) {
	acc, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, apperrors.Persistence("load account", err)
	}
	if acc == nil {
		return nil, apperrors.ErrAccountNotFound
	}
	return acc, nil
}

// Bundle claims a one-time prekey, if any is left, and returns the public bundle.
func (s *Service) Bundle(ctx context.Context, name string) (*model.PreKeyBundle, error) {
	acc, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	otk, err := s.repo.ClaimOneTimePreKey(ctx, name)
	if err != nil {
		return nil, apperrors.Persistence("claim one-time prekey", err)
	}
	if otk == nil {
		log.Warn("no one-time prekeys left", zap.String("name", name))
	}

	return BuildBundle(acc, otk), nil
}

func BuildBundle(acc *model.Account, otk *model.OneTimePreKey) *model.PreKeyBundle {
	b := &model.PreKeyBundle{
		UserID:     acc.Name,
		IKPub:      acc.IKPub,
		SigningPub: acc.SigningPub,
		SPKID:      acc.SignedPreKey.KeyID,
		SPKPub:     acc.SignedPreKey.Pub,
		Signature:  acc.SignedPreKey.Signature,
	}
	if otk != nil {
		id := otk.KeyID
		b.OneTimePreKeyID = &id
		b.OTKPub = otk.Pub
	}
	return b
}

// VerifyBundle checks the signed prekey signature against the bundle's signing key.
func VerifyBundle(b *model.PreKeyBundle) error {
	if b == nil || len(b.IKPub) == 0 || len(b.SPKPub) == 0 {
		return apperrors.WithCause(apperrors.ErrInvalidSignedPreKey, errors.New("incomplete bundle"))
	}
	if !signature.VerifyPreKey(b.SigningPub, b.SPKID, b.SPKPub, b.Signature) {
		return apperrors.ErrInvalidSignedPreKey
	}
	return nil
}

func (s *Service) newAccount(name string) (*model.Account, error) {
	ikPriv, ikPub, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, apperrors.Crypto("generate identity key", err)
	}

	signPub, signPriv, err := signature.NewSigningKey()
	if err != nil {
		return nil, apperrors.Crypto("generate signing key", err)
	}

	spkPriv, spkPub, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, apperrors.Crypto("generate signed prekey", err)
	}

	sig, err := signature.SignPreKey(signPriv, signedPreKeyID, spkPub[:])
	if err != nil {
		return nil, apperrors.Crypto("sign prekey", err)
	}

	acc := &model.Account{
		Name:        name,
		IKPriv:      ikPriv[:],
		IKPub:       ikPub[:],
		SigningPriv: signPriv,
		SigningPub:  signPub,
		SignedPreKey: model.SignedPreKey{
			KeyID:     signedPreKeyID,
			Priv:      spkPriv[:],
			Pub:       spkPub[:],
			Signature: sig,
		},
		CreatedAt: time.Now().UTC(),
	}

	for i := 0; i < s.oneTimePreKeys; i++ {
		priv, pub, err := dh.NewX25519KeyPair()
		if err != nil {
			return nil, apperrors.Crypto("generate one-time prekey", err)
		}
		acc.OneTimePreKeys = append(acc.OneTimePreKeys, model.OneTimePreKey{
			KeyID: uint32(i + 1),
			Priv:  priv[:],
			Pub:   pub[:],
		})
	}

	return acc, nil
}
