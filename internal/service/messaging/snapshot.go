package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/model"
	"e2e_messaging/internal/utils/log"
)

type (
	// Snapshot is the persisted form of the conversation and message indexes.
	// Entries are encoded as [key, value] pairs and Timestamp is Unix milliseconds.
	Snapshot struct {
		Conversations []ConversationEntry `json:"conversations"`
		Messages      []MessagesEntry     `json:"messages"`
		Timestamp     int64               `json:"timestamp"`
	}

	ConversationEntry struct {
		ID           string
		Conversation *model.Conversation
	}

	MessagesEntry struct {
		ConversationID string
		Messages       []*model.EncryptedMessage
	}
)

func (e ConversationEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.ID, e.Conversation})
}

func (e *ConversationEntry) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("conversation entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &e.Conversation)
}

func (e MessagesEntry) MarshalJSON() ([]byte, error) {
	msgs := e.Messages
	if msgs == nil {
		msgs = []*model.EncryptedMessage{}
	}
	return json.Marshal([]any{e.ConversationID, msgs})
}

func (e *MessagesEntry) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("messages entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ConversationID); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &e.Messages)
}

// Snapshot captures the current indexes, sorted by conversation id.
func (s *Service) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Conversations: make([]ConversationEntry, 0, len(s.conversations)),
		Messages:      make([]MessagesEntry, 0, len(s.messages)),
		Timestamp:     s.cfg.Now().UnixMilli(),
	}
	for id, c := range s.conversations {
		snap.Conversations = append(snap.Conversations, ConversationEntry{ID: id, Conversation: c.Clone()})
	}
	for id, msgs := range s.messages {
		cp := make([]*model.EncryptedMessage, len(msgs))
		for i, m := range msgs {
			mm := *m
			cp[i] = &mm
		}
		snap.Messages = append(snap.Messages, MessagesEntry{ConversationID: id, Messages: cp})
	}

	sort.Slice(snap.Conversations, func(i, j int) bool { return snap.Conversations[i].ID < snap.Conversations[j].ID })
	sort.Slice(snap.Messages, func(i, j int) bool { return snap.Messages[i].ConversationID < snap.Messages[j].ConversationID })
	return snap
}

// Restore replaces the in-memory indexes with snap.
func (s *Service) Restore(snap *Snapshot) {
	conversations := make(map[string]*model.Conversation, len(snap.Conversations))
	for _, e := range snap.Conversations {
		if e.Conversation == nil {
			continue
		}
		conversations[e.ID] = e.Conversation.Clone()
	}
	messages := make(map[string][]*model.EncryptedMessage, len(snap.Messages))
	for _, e := range snap.Messages {
		messages[e.ConversationID] = append([]*model.EncryptedMessage(nil), e.Messages...)
	}

	s.mu.Lock()
	s.conversations = conversations
	s.messages = messages
	s.mu.Unlock()
}

// Load restores the indexes from the snapshot store. A missing snapshot is not
// an error. A snapshot that cannot be decoded is copied to a quarantine key and
// the service starts empty; only a failing store read is returned.
func (s *Service) Load(ctx context.Context) error {
	b, err := s.kv.Get(ctx, s.cfg.SnapshotKey)
	if err != nil {
		return err
	}
	if b == nil {
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		s.quarantine(ctx, b, err)
		return nil
	}
	s.Restore(&snap)

	log.Info("snapshot loaded",
		zap.Int("conversations", len(snap.Conversations)),
		zap.Time("written_at", time.UnixMilli(snap.Timestamp)),
	)
	return nil
}

// Flush writes the whole snapshot. Concurrent flushes are serialized so an
// older snapshot never lands after a newer one.
func (s *Service) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.dirty.Store(false)
	b, err := json.Marshal(s.Snapshot())
	if err != nil {
		s.dirty.Store(true)
		return apperrors.Persistence("encode snapshot", err)
	}
	if err := s.kv.Set(ctx, s.cfg.SnapshotKey, b); err != nil {
		s.dirty.Store(true)
		return err
	}
	return nil
}

// Run flushes dirty state every FlushInterval until ctx is done, then flushes
// once more. It returns immediately when FlushInterval is 0.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.FlushInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Close(context.WithoutCancel(ctx))
		case <-ticker.C:
			if !s.dirty.Load() {
				continue
			}
			if err := s.Flush(ctx); err != nil {
				log.Error("flush snapshot, will retry", zap.Error(err))
			}
		}
	}
}

// Close writes any pending state.
func (s *Service) Close(ctx context.Context) error {
	if s.cfg.FlushInterval > 0 && !s.dirty.Load() {
		return nil
	}
	return s.Flush(ctx)
}

// persist writes the snapshot or marks it dirty. Failures are logged and do not
// fail the operation that triggered them.
func (s *Service) persist(ctx context.Context) {
	if s.cfg.FlushInterval > 0 {
		s.dirty.Store(true)
		return
	}
	if err := s.Flush(ctx); err != nil {
		log.Error("persist snapshot", zap.Error(err))
	}
}

func (s *Service) quarantine(ctx context.Context, b []byte, cause error) {
	key := fmt.Sprintf("%s.corrupt-%d", s.cfg.SnapshotKey, s.cfg.Now().UnixMilli())
	fields := []zap.Field{
		zap.String("key", s.cfg.SnapshotKey),
		zap.String("moved_to", key),
		zap.Error(cause),
	}
	if err := s.kv.Set(ctx, key, b); err != nil {
		fields = append(fields, zap.NamedError("move_error", err))
	}
	log.Error("corrupt snapshot, starting empty", fields...)
}
