package model

import (
	"encoding/json"
	"time"
)

type (
	// RatchetHeader names the session and chain position that produced a message key.
	RatchetHeader struct {
		SessionID     string `json:"session_id"`
		MessageNumber uint32 `json:"message_number"`
	}

	// EncryptedMessage is immutable once built by the sender.
	EncryptedMessage struct {
		ID            string     `json:"id"`
		SenderID      string     `json:"sender_id"`
		RecipientID   string     `json:"recipient_id"`
		Ciphertext    []byte     `json:"ciphertext"`
		Nonce         []byte     `json:"nonce"`
		RatchetHeader string     `json:"ratchet_header"`
		Timestamp     time.Time  `json:"timestamp"`
		MessageNumber uint32     `json:"message_number"`
		Handshake     *Handshake `json:"handshake,omitempty"`
	}

	// DecryptedMessage only ever lives in memory.
	DecryptedMessage struct {
		ID          string         `json:"id"`
		SenderID    string         `json:"sender_id"`
		RecipientID string         `json:"recipient_id"`
		Content     string         `json:"content"`
		Type        string         `json:"type"`
		Metadata    map[string]any `json:"metadata,omitempty"`
		Timestamp   time.Time      `json:"timestamp"`
	}

	// Envelope is the plaintext that gets sealed for each message.
	Envelope struct {
		Content  string         `json:"content"`
		Type     string         `json:"type"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}
)

const MessageTypeText = "text"

func (h RatchetHeader) Marshal() (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func ParseRatchetHeader(s string) (RatchetHeader, bool) {
	var h RatchetHeader
	if s == "" {
		return h, false
	}
	if err := json.Unmarshal([]byte(s), &h); err != nil {
		return h, false
	}
	if h.SessionID == "" {
		return h, false
	}
	return h, true
}
