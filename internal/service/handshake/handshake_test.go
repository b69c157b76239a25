package handshake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/model"
	"e2e_messaging/internal/protocol/ratchet"
	accountrepo "e2e_messaging/internal/repository/account"
	"e2e_messaging/internal/service/account"
	"e2e_messaging/internal/service/directory"
)

type stubDirectory struct {
	bundle *model.PreKeyBundle
}

func (s stubDirectory) FetchBundle(context.Context, string) (*model.PreKeyBundle, error) {
	return s.bundle, nil
}

func setup(t *testing.T, opks int) (alice, bob *Service) {
	t.Helper()
	ctx := context.Background()
	accounts := account.NewService(accountrepo.NewMemoryRepo(), opks)
	for _, name := range []string{"alice", "bob"} {
		_, err := accounts.GetOrCreate(ctx, name)
		require.NoError(t, err)
	}
	dir := directory.NewLocal(accounts)
	engine := ratchet.NewEngine()
	return NewService("alice", accounts, dir, engine), NewService("bob", accounts, dir, engine)
}

func TestInitiateAndRespondAgree(t *testing.T) {
	for _, opks := range []int{0, 2} {
		ctx := context.Background()
		alice, bob := setup(t, opks)

		a, err := alice.Initiate(ctx, "bob")
		require.NoError(t, err)
		require.NotNil(t, a.Handshake)
		assert.Equal(t, opks > 0, a.Handshake.OneTimePreKeyID != nil)

		b, err := bob.Respond(ctx, "alice", a.Handshake)
		require.NoError(t, err)
		assert.Nil(t, b.Handshake)

		require.Equal(t, a.SessionID, b.SessionID)
		assert.Equal(t, a.SendingChain.ChainKey, b.ReceivingChains[b.SessionID].ChainKey)
		assert.Equal(t, b.SendingChain.ChainKey, a.ReceivingChains[a.SessionID].ChainKey)
		assert.Equal(t, a.Handshake.IdentityKey, b.PeerIdentityKey)
		assert.NotEmpty(t, a.PeerIdentityKey)
	}
}

func TestAcceptConsumesOneTimePreKey(t *testing.T) {
	ctx := context.Background()
	alice, bob := setup(t, 1)

	a, err := alice.Initiate(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, a.Handshake.OneTimePreKeyID)

	// responding alone leaves the prekey in place
	first, err := bob.Respond(ctx, "alice", a.Handshake)
	require.NoError(t, err)
	second, err := bob.Respond(ctx, "alice", a.Handshake)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	require.NoError(t, bob.Accept(ctx, a.Handshake))
	require.ErrorIs(t, bob.Accept(ctx, a.Handshake), apperrors.ErrOneTimePreKeyMissing)

	_, err = bob.Respond(ctx, "alice", a.Handshake)
	require.ErrorIs(t, err, apperrors.ErrOneTimePreKeyMissing)
}

func TestRespondUnknownSignedPreKey(t *testing.T) {
	ctx := context.Background()
	alice, bob := setup(t, 0)

	a, err := alice.Initiate(ctx, "bob")
	require.NoError(t, err)

	hs := a.Handshake.Clone()
	hs.SignedPreKeyID = 99
	_, err = bob.Respond(ctx, "alice", hs)
	require.ErrorIs(t, err, apperrors.ErrUnknownSignedPreKey)

	_, err = bob.Respond(ctx, "alice", nil)
	require.ErrorIs(t, err, apperrors.ErrMissingRatchetHeader)
}

func TestInitiateRejectsForgedBundle(t *testing.T) {
	ctx := context.Background()
	accounts := account.NewService(accountrepo.NewMemoryRepo(), 0)
	_, err := accounts.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	_, err = accounts.GetOrCreate(ctx, "bob")
	require.NoError(t, err)

	b, err := accounts.Bundle(ctx, "bob")
	require.NoError(t, err)
	b.Signature = make([]byte, len(b.Signature))

	svc := NewService("alice", accounts, stubDirectory{bundle: b}, ratchet.NewEngine())
	_, err = svc.Initiate(ctx, "bob")
	require.ErrorIs(t, err, apperrors.ErrInvalidSignedPreKey)
}

func TestInitiateUnknownPeer(t *testing.T) {
	alice, _ := setup(t, 0)
	_, err := alice.Initiate(context.Background(), "carol")
	require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}
