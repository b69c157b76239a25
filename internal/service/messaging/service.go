package messaging

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/model"
	"e2e_messaging/internal/repository/session"
	"e2e_messaging/internal/repository/snapshot"
	"e2e_messaging/internal/service/events"
	"e2e_messaging/internal/utils/log"
)

const (
	DefaultMessageLimit = 50
	DefaultSnapshotKey  = "messaging_data"
)

type (
	// Engine is the crypto surface the service needs.
	Engine interface {
		EncryptMessage(plaintext, key, aad []byte) ([]byte, []byte, error)
		DecryptMessage(ciphertext, key, nonce, aad []byte) ([]byte, error)
		AdvanceChain(chain model.ChainState) ([]byte, model.ChainState, error)
		MessageKey(chain model.ChainState, n uint32) ([]byte, model.ChainState, error)
	}

	// Handshaker establishes sessions with peers that have none. Accept is
	// called once a session answered with Respond has been stored.
	Handshaker interface {
		Initiate(ctx context.Context, peerID string) (*model.SessionState, error)
		Respond(ctx context.Context, peerID string, hs *model.Handshake) (*model.SessionState, error)
		Accept(ctx context.Context, hs *model.Handshake) error
	}

	Config struct {
		LocalID     string
		SnapshotKey string
		// FlushInterval 0 writes the snapshot after every mutation. Otherwise
		// mutations only mark it dirty and Run writes it on each tick.
		FlushInterval time.Duration
		Now           func() time.Time
	}

	Service struct {
		cfg        Config
		engine     Engine
		sessions   session.Store
		handshaker Handshaker
		kv         snapshot.KV
		bus        *events.Bus

		mu            sync.Mutex
		conversations map[string]*model.Conversation
		messages      map[string][]*model.EncryptedMessage
		arena         map[string]*model.SessionState
		peerLocks     map[string]*sync.Mutex

		writeMu sync.Mutex
		dirty   atomic.Bool
	}
)

func NewService(cfg Config, engine Engine, sessions session.Store, handshaker Handshaker, kv snapshot.KV) *Service {
	if cfg.SnapshotKey == "" {
		cfg.SnapshotKey = DefaultSnapshotKey
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		cfg:           cfg,
		engine:        engine,
		sessions:      sessions,
		handshaker:    handshaker,
		kv:            kv,
		bus:           events.NewBus(),
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]*model.EncryptedMessage),
		arena:         make(map[string]*model.SessionState),
		peerLocks:     make(map[string]*sync.Mutex),
	}
}

func (s *Service) LocalID() string {
	return s.cfg.LocalID
}

func (s *Service) On(kind events.Kind, fn events.Handler) events.Subscription {
	return s.bus.On(kind, fn)
}

func (s *Service) Off(sub events.Subscription) bool {
	return s.bus.Off(sub)
}

// CreateConversation returns the existing record for a known two-party pair
// without emitting anything.
func (s *Service) CreateConversation(ctx context.Context, participantIDs []string) (*model.Conversation, error) {
	ids := dedupe(participantIDs)
	if len(ids) < 2 {
		return nil, apperrors.ErrInvalidParticipants
	}

	s.mu.Lock()
	conv, created := s.conversationLocked(ids)
	out := conv.Clone()
	s.mu.Unlock()

	if created {
		s.persist(ctx)
		s.bus.Emit(events.Event{Kind: events.ConversationCreated, Conversation: out.Clone()})
		log.Debug("conversation created",
			zap.String("conversation_id", out.ID),
			zap.String("type", string(out.Type)),
		)
	}
	return out, nil
}

func (s *Service) GetConversation(id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}
	return conv.Clone(), nil
}

// GetConversations returns every conversation, most recently updated first.
func (s *Service) GetConversations() []*model.Conversation {
	s.mu.Lock()
	out := make([]*model.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetMessages returns up to limit messages, newest first. A limit <= 0 means
// DefaultMessageLimit.
func (s *Service) GetMessages(conversationID string, limit int) []*model.EncryptedMessage {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	if limit > len(msgs) {
		limit = len(msgs)
	}
	out := make([]*model.EncryptedMessage, 0, limit)
	for i := len(msgs) - 1; i >= len(msgs)-limit; i-- {
		m := *msgs[i]
		out = append(out, &m)
	}
	return out
}

// MarkAsRead only notifies subscribers; read state is not stored.
func (s *Service) MarkAsRead(conversationID, messageID string) error {
	if conversationID == "" || messageID == "" {
		return apperrors.InvalidArg("conversation id and message id are required")
	}
	s.bus.Emit(events.Event{
		Kind: events.MessageRead,
		Receipt: &events.ReadReceipt{
			ConversationID: conversationID,
			MessageID:      messageID,
		},
	})
	return nil
}

func (s *Service) UpdateConversationSettings(ctx context.Context, conversationID string, patch model.SettingsPatch) (*model.Conversation, error) {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return nil, apperrors.ErrConversationNotFound
	}
	conv.Settings = conv.Settings.Merge(patch)
	conv.UpdatedAt = s.cfg.Now()
	out := conv.Clone()
	s.mu.Unlock()

	s.persist(ctx)
	s.bus.Emit(events.Event{Kind: events.ConversationUpdated, Conversation: out.Clone()})
	return out, nil
}

// conversationLocked resolves the conversation for ids, creating it when needed.
// Callers hold s.mu.
func (s *Service) conversationLocked(ids []string) (*model.Conversation, bool) {
	var id string
	typ := model.ConversationGroup
	if len(ids) == 2 {
		typ = model.ConversationDirect
		id = model.DirectConversationID(ids[0], ids[1])
		if conv, ok := s.conversations[id]; ok {
			return conv, false
		}
	} else {
		id = uuid.NewString()
	}

	now := s.cfg.Now()
	conv := &model.Conversation{
		ID:           id,
		Participants: ids,
		Type:         typ,
		Settings:     model.DefaultSettings(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.conversations[id] = conv
	if _, ok := s.messages[id]; !ok {
		s.messages[id] = nil
	}
	return conv, true
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
