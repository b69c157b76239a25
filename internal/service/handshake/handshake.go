package handshake

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/cryptographic/dh"
	"e2e_messaging/internal/model"
	"e2e_messaging/internal/protocol/ratchet"
	"e2e_messaging/internal/protocol/x3dh"
	"e2e_messaging/internal/service/account"
	"e2e_messaging/internal/service/directory"
	"e2e_messaging/internal/utils/log"
)

type (
	// Service runs X3DH on behalf of one local account and turns the negotiated
	// secret into a session.
	Service struct {
		localID   string
		accounts  *account.Service
		directory directory.Directory
		engine    *ratchet.Engine
	}
)

func NewService(localID string, accounts *account.Service, dir directory.Directory, engine *ratchet.Engine) *Service {
	return &Service{
		localID:   localID,
		accounts:  accounts,
		directory: dir,
		engine:    engine,
	}
}

// Initiate fetches the peer's bundle and establishes a session as the initiator.
// The returned state carries the handshake to attach to outbound messages.
func (s *Service) Initiate(ctx context.Context, peerID string) (*model.SessionState, error) {
	acc, err := s.accounts.Get(ctx, s.localID)
	if err != nil {
		return nil, err
	}

	bundle, err := s.directory.FetchBundle(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if bundle.UserID != "" && bundle.UserID != peerID {
		return nil, apperrors.Session("fetch prekey bundle",
			fmt.Errorf("bundle for %q returned for %q", bundle.UserID, peerID))
	}

	if err := account.VerifyBundle(bundle); err != nil {
		return nil, err
	}

	ekPriv, ekPub, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, apperrors.Crypto("generate ephemeral key", err)
	}

	sender := &x3dh.X3DHSender{}
	secret, err := sender.GenerateShareKey(&model.SenderKeyBundle{
		IKPrivA: acc.IKPriv,
		EKPrivA: ekPriv[:],
		IKPubB:  bundle.IKPub,
		SPKPubB: bundle.SPKPub,
		OTKPubB: bundle.OTKPub,
	})
	clear(ekPriv[:])
	if err != nil {
		return nil, apperrors.Crypto("x3dh", err)
	}

	state, err := s.engine.InitializeSession(secret, ratchet.Initiator)
	if err != nil {
		return nil, err
	}

	state.PeerIdentityKey = bundle.IKPub
	state.Handshake = &model.Handshake{
		IdentityKey:     acc.IKPub,
		EphemeralKey:    ekPub[:],
		SignedPreKeyID:  bundle.SPKID,
		OneTimePreKeyID: bundle.OneTimePreKeyID,
	}

	log.Debug("session initiated",
		zap.String("local", s.localID),
		zap.String("peer", peerID),
		zap.String("session_id", state.SessionID),
		zap.Bool("one_time_pre_key", bundle.OneTimePreKeyID != nil),
	)
	return state, nil
}

// Respond recomputes the initiator's secret from our prekeys. It does not
// consume the referenced one-time prekey; call Accept once the session is kept.
func (s *Service) Respond(ctx context.Context, peerID string, hs *model.Handshake) (*model.SessionState, error) {
	if hs == nil || len(hs.IdentityKey) == 0 || len(hs.EphemeralKey) == 0 {
		return nil, apperrors.ErrMissingRatchetHeader
	}

	acc, err := s.accounts.Get(ctx, s.localID)
	if err != nil {
		return nil, err
	}

	if hs.SignedPreKeyID != acc.SignedPreKey.KeyID {
		return nil, apperrors.WithCause(apperrors.ErrUnknownSignedPreKey,
			fmt.Errorf("got key id %d, have %d", hs.SignedPreKeyID, acc.SignedPreKey.KeyID))
	}

	var otkPriv []byte
	if hs.OneTimePreKeyID != nil {
		for _, k := range acc.OneTimePreKeys {
			if k.KeyID == *hs.OneTimePreKeyID {
				otkPriv = k.Priv
				break
			}
		}
		if otkPriv == nil {
			return nil, apperrors.WithCause(apperrors.ErrOneTimePreKeyMissing,
				fmt.Errorf("key id %d", *hs.OneTimePreKeyID))
		}
	}

	receiver := &x3dh.X3DHReceiver{}
	secret, err := receiver.GenerateShareKey(&model.ReceiverKeyBundle{
		IKPubA:   hs.IdentityKey,
		EKPubA:   hs.EphemeralKey,
		IKPrivB:  acc.IKPriv,
		SPKPrivB: acc.SignedPreKey.Priv,
		OTKPrivB: otkPriv,
	})
	if err != nil {
		return nil, apperrors.Crypto("x3dh", err)
	}

	state, err := s.engine.InitializeSession(secret, ratchet.Responder)
	if err != nil {
		return nil, err
	}
	state.PeerIdentityKey = append([]byte(nil), hs.IdentityKey...)

	log.Debug("session accepted",
		zap.String("local", s.localID),
		zap.String("peer", peerID),
		zap.String("session_id", state.SessionID),
	)
	return state, nil
}

// Accept deletes the one-time prekey a handshake used, so it cannot seed another session.
func (s *Service) Accept(ctx context.Context, hs *model.Handshake) error {
	if hs == nil || hs.OneTimePreKeyID == nil {
		return nil
	}
	otk, err := s.accounts.Repository().ConsumeOneTimePreKey(ctx, s.localID, *hs.OneTimePreKeyID)
	if err != nil {
		return apperrors.Persistence("consume one-time prekey", err)
	}
	if otk == nil {
		return apperrors.WithCause(apperrors.ErrOneTimePreKeyMissing,
			fmt.Errorf("key id %d", *hs.OneTimePreKeyID))
	}
	return nil
}
