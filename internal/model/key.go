package model

type (
	// PreKeyBundle is the public half of an account, served by the key directory.
	PreKeyBundle struct {
		UserID          string  `json:"user_id"`
		IKPub           []byte  `json:"ik_pub"`
		SigningPub      []byte  `json:"signing_pub"`
		SPKID           uint32  `json:"spk_id"`
		SPKPub          []byte  `json:"spk_pub"`
		Signature       []byte  `json:"signature"`
		OneTimePreKeyID *uint32 `json:"otk_id,omitempty"`
		OTKPub          []byte  `json:"otk_pub,omitempty"`
	}
)
