package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	SignedPreKey struct {
		KeyID     uint32 `bson:"key_id" json:"key_id"`
		Priv      []byte `bson:"priv" json:"priv"`
		Pub       []byte `bson:"pub" json:"pub"`
		Signature []byte `bson:"signature" json:"signature"`
	}

	OneTimePreKey struct {
		KeyID  uint32 `bson:"key_id" json:"key_id"`
		Priv   []byte `bson:"priv" json:"priv"`
		Pub    []byte `bson:"pub" json:"pub"`
		Issued bool   `bson:"issued" json:"issued"`
	}

	// Account holds a user's long-term and prekey material.
	Account struct {
		ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
		Name           string             `bson:"name" json:"name"`
		IKPriv         []byte             `bson:"ik_priv" json:"ik_priv"`
		IKPub          []byte             `bson:"ik_pub" json:"ik_pub"`
		SigningPriv    []byte             `bson:"signing_priv" json:"signing_priv"`
		SigningPub     []byte             `bson:"signing_pub" json:"signing_pub"`
		SignedPreKey   SignedPreKey       `bson:"signed_pre_key" json:"signed_pre_key"`
		OneTimePreKeys []OneTimePreKey    `bson:"one_time_pre_keys" json:"one_time_pre_keys"`
		CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	}
)
