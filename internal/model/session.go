package model

import "time"

type (
	// ChainState is one symmetric ratchet chain. MessageNumber only grows.
	ChainState struct {
		ChainKey      []byte            `json:"chain_key"`
		MessageNumber uint32            `json:"message_number"`
		Skipped       map[uint32][]byte `json:"skipped,omitempty"`
	}

	// SessionState is the sole owner of chain material for one (local user, peer) pair.
	SessionState struct {
		SessionID       string                 `json:"session_id"`
		RootKey         []byte                 `json:"root_key"`
		SendingChain    ChainState             `json:"sending_chain"`
		ReceivingChains map[string]*ChainState `json:"receiving_chains"`
		PeerIdentityKey []byte                 `json:"peer_identity_key,omitempty"`
		Handshake       *Handshake             `json:"handshake,omitempty"`
		CreatedAt       time.Time              `json:"created_at"`
		UpdatedAt       time.Time              `json:"updated_at"`
	}
)

func (c ChainState) Clone() ChainState {
	out := ChainState{
		ChainKey:      append([]byte(nil), c.ChainKey...),
		MessageNumber: c.MessageNumber,
	}
	if len(c.Skipped) > 0 {
		out.Skipped = make(map[uint32][]byte, len(c.Skipped))
		for n, k := range c.Skipped {
			out.Skipped[n] = append([]byte(nil), k...)
		}
	}
	return out
}

// Clone deep-copies the state so a chain can be advanced without touching the original.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := &SessionState{
		SessionID:       s.SessionID,
		RootKey:         append([]byte(nil), s.RootKey...),
		SendingChain:    s.SendingChain.Clone(),
		ReceivingChains: make(map[string]*ChainState, len(s.ReceivingChains)),
		PeerIdentityKey: append([]byte(nil), s.PeerIdentityKey...),
		Handshake:       s.Handshake.Clone(),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	for id, chain := range s.ReceivingChains {
		c := chain.Clone()
		out.ReceivingChains[id] = &c
	}
	return out
}
