package model

type (
	// Handshake travels with the initiator's messages until the peer answers inside the session.
	Handshake struct {
		IdentityKey     []byte  `json:"identity_key"`
		EphemeralKey    []byte  `json:"ephemeral_key"`
		SignedPreKeyID  uint32  `json:"signed_pre_key_id"`
		OneTimePreKeyID *uint32 `json:"one_time_pre_key_id,omitempty"`
	}

	SenderKeyBundle struct {
		IKPrivA []byte
		EKPrivA []byte

		IKPubB  []byte
		SPKPubB []byte
		OTKPubB []byte
	}

	ReceiverKeyBundle struct {
		IKPubA []byte
		EKPubA []byte

		IKPrivB  []byte
		SPKPrivB []byte
		OTKPrivB []byte
	}
)

func (h *Handshake) Clone() *Handshake {
	if h == nil {
		return nil
	}
	out := &Handshake{
		IdentityKey:    append([]byte(nil), h.IdentityKey...),
		EphemeralKey:   append([]byte(nil), h.EphemeralKey...),
		SignedPreKeyID: h.SignedPreKeyID,
	}
	if h.OneTimePreKeyID != nil {
		id := *h.OneTimePreKeyID
		out.OneTimePreKeyID = &id
	}
	return out
}
