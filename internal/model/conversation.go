package model

import (
	"sort"
	"strings"
	"time"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type (
	ConversationSettings struct {
		EphemeralEnabled     bool `json:"ephemeral_enabled"`
		NotificationsEnabled bool `json:"notifications_enabled"`
		AnchoringEnabled     bool `json:"anchoring_enabled"`
	}

	// SettingsPatch carries a partial settings update; nil fields are left alone.
	SettingsPatch struct {
		EphemeralEnabled     *bool `json:"ephemeral_enabled,omitempty"`
		NotificationsEnabled *bool `json:"notifications_enabled,omitempty"`
		AnchoringEnabled     *bool `json:"anchoring_enabled,omitempty"`
	}

	Conversation struct {
		ID           string               `json:"id"`
		Participants []string             `json:"participants"`
		Type         ConversationType     `json:"type"`
		Settings     ConversationSettings `json:"settings"`
		LastMessage  *EncryptedMessage    `json:"last_message,omitempty"`
		CreatedAt    time.Time            `json:"created_at"`
		UpdatedAt    time.Time            `json:"updated_at"`
	}
)

func DefaultSettings() ConversationSettings {
	return ConversationSettings{NotificationsEnabled: true}
}

func (s ConversationSettings) Merge(p SettingsPatch) ConversationSettings {
	if p.EphemeralEnabled != nil {
		s.EphemeralEnabled = *p.EphemeralEnabled
	}
	if p.NotificationsEnabled != nil {
		s.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.AnchoringEnabled != nil {
		s.AnchoringEnabled = *p.AnchoringEnabled
	}
	return s
}

// DirectConversationID is part of the storage format: sorted ids joined by "|".
func DirectConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	if c.LastMessage != nil {
		m := *c.LastMessage
		out.LastMessage = &m
	}
	return &out
}
