package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectConversationIDSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"B", "A"},
		{"user-10", "user-9"},
		{"", "x"},
	}
	for _, p := range pairs {
		assert.Equal(t, DirectConversationID(p[0], p[1]), DirectConversationID(p[1], p[0]))
	}
	assert.Equal(t, "A|B", DirectConversationID("B", "A"))
}

func TestRatchetHeaderParse(t *testing.T) {
	s, err := RatchetHeader{SessionID: "abc", MessageNumber: 7}.Marshal()
	require.NoError(t, err)

	h, ok := ParseRatchetHeader(s)
	require.True(t, ok)
	assert.Equal(t, "abc", h.SessionID)
	assert.Equal(t, uint32(7), h.MessageNumber)

	for _, bad := range []string{"", "{", `{"message_number":1}`, "null"} {
		_, ok := ParseRatchetHeader(bad)
		assert.False(t, ok, bad)
	}
}

func TestSessionStateCloneIsDeep(t *testing.T) {
	otk := uint32(3)
	s := &SessionState{
		SessionID:    "s1",
		RootKey:      []byte{1},
		SendingChain: ChainState{ChainKey: []byte{2}, MessageNumber: 4},
		ReceivingChains: map[string]*ChainState{
			"s1": {ChainKey: []byte{3}, Skipped: map[uint32][]byte{1: {9}}},
		},
		Handshake: &Handshake{IdentityKey: []byte{5}, OneTimePreKeyID: &otk},
	}

	c := s.Clone()
	c.SendingChain.ChainKey[0] = 0xff
	c.ReceivingChains["s1"].ChainKey[0] = 0xff
	c.ReceivingChains["s1"].Skipped[1][0] = 0xff
	*c.Handshake.OneTimePreKeyID = 99

	assert.Equal(t, byte(2), s.SendingChain.ChainKey[0])
	assert.Equal(t, byte(3), s.ReceivingChains["s1"].ChainKey[0])
	assert.Equal(t, byte(9), s.ReceivingChains["s1"].Skipped[1][0])
	assert.Equal(t, uint32(3), *s.Handshake.OneTimePreKeyID)
}

func TestSettingsMerge(t *testing.T) {
	on := true
	off := false
	s := DefaultSettings().Merge(SettingsPatch{EphemeralEnabled: &on, NotificationsEnabled: &off})
	assert.Equal(t, ConversationSettings{EphemeralEnabled: true}, s)
}
