package messaging

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/model"
	"e2e_messaging/internal/service/events"
	"e2e_messaging/internal/utils/log"
)

// SendMessage encrypts msg for its recipient, advancing the sending chain once,
// and records the ciphertext in the direct conversation. A session is
// established first when the recipient has none.
func (s *Service) SendMessage(ctx context.Context, msg model.DecryptedMessage) (*model.EncryptedMessage, error) {
	if msg.RecipientID == "" || msg.RecipientID == s.cfg.LocalID {
		return nil, apperrors.ErrInvalidRecipient
	}
	if msg.SenderID == "" {
		msg.SenderID = s.cfg.LocalID
	}
	if msg.SenderID != s.cfg.LocalID {
		return nil, apperrors.ErrInvalidSender
	}
	if msg.Type == "" {
		msg.Type = model.MessageTypeText
	}

	em, conv, created, err := s.seal(ctx, msg)
	if err != nil {
		return nil, err
	}

	s.persist(ctx)

	if created {
		s.bus.Emit(events.Event{Kind: events.ConversationCreated, Conversation: conv})
	}
	out := *em
	s.bus.Emit(events.Event{Kind: events.MessageSent, Message: &out})
	return em, nil
}

// seal runs the session part of SendMessage under the peer lock and records
// the result in the conversation index. Handlers are never called while the
// lock is held so they may call back into the service for the same peer.
func (s *Service) seal(ctx context.Context, msg model.DecryptedMessage) (*model.EncryptedMessage, *model.Conversation, bool, error) {
	peer := msg.RecipientID
	lock := s.peerLock(peer)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.loadSession(ctx, peer)
	if err != nil {
		return nil, nil, false, err
	}

	var working *model.SessionState
	if state == nil {
		working, err = s.handshaker.Initiate(ctx, peer)
		if err != nil {
			return nil, nil, false, err
		}
	} else {
		working = state.Clone()
	}

	number := working.SendingChain.MessageNumber
	mk, next, err := s.engine.AdvanceChain(working.SendingChain)
	if err != nil {
		return nil, nil, false, err
	}
	defer clear(mk)
	working.SendingChain = next

	header, err := model.RatchetHeader{SessionID: working.SessionID, MessageNumber: number}.Marshal()
	if err != nil {
		return nil, nil, false, apperrors.Internal("encode ratchet header", err)
	}

	plain, err := json.Marshal(model.Envelope{Content: msg.Content, Type: msg.Type, Metadata: msg.Metadata})
	if err != nil {
		return nil, nil, false, apperrors.WithCause(apperrors.ErrMalformedEnvelope, err)
	}
	defer clear(plain)

	ct, nonce, err := s.engine.EncryptMessage(plain, mk, associatedData(msg.SenderID, peer, header))
	if err != nil {
		return nil, nil, false, err
	}

	now := s.cfg.Now()
	working.UpdatedAt = now
	if err := s.commitSession(ctx, peer, working); err != nil {
		return nil, nil, false, err
	}

	em := &model.EncryptedMessage{
		ID:            msg.ID,
		SenderID:      msg.SenderID,
		RecipientID:   peer,
		Ciphertext:    ct,
		Nonce:         nonce,
		RatchetHeader: header,
		Timestamp:     msg.Timestamp,
		MessageNumber: number,
		Handshake:     working.Handshake.Clone(),
	}
	if em.ID == "" {
		em.ID = uuid.NewString()
	}
	if em.Timestamp.IsZero() {
		em.Timestamp = now
	}

	s.mu.Lock()
	conv, created := s.conversationLocked([]string{msg.SenderID, peer})
	s.messages[conv.ID] = append(s.messages[conv.ID], em)
	last := *em
	conv.LastMessage = &last
	conv.UpdatedAt = now
	convOut := conv.Clone()
	s.mu.Unlock()

	log.Debug("message sent",
		zap.String("peer", peer),
		zap.String("session_id", working.SessionID),
		zap.Uint32("message_number", number),
	)
	return em, convOut, created, nil
}

// DecryptMessage opens a message from a peer. Chain state is only committed
// once the ciphertext authenticates and the new state is stored, so a failed
// attempt leaves the session untouched.
func (s *Service) DecryptMessage(ctx context.Context, msg *model.EncryptedMessage) (*model.DecryptedMessage, error) {
	if msg == nil || msg.SenderID == "" {
		return nil, apperrors.InvalidArg("message sender id is required")
	}
	if msg.RecipientID != s.cfg.LocalID {
		return nil, apperrors.ErrInvalidRecipient
	}

	peer := msg.SenderID
	lock := s.peerLock(peer)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.loadSession(ctx, peer)
	if err != nil {
		return nil, err
	}
	if state == nil && msg.Handshake == nil {
		return nil, apperrors.ErrSessionNotFound
	}

	header, ok := model.ParseRatchetHeader(msg.RatchetHeader)
	if !ok {
		return nil, apperrors.ErrMissingRatchetHeader
	}

	working, answered, err := s.receivingSession(ctx, peer, state, header, msg.Handshake)
	if err != nil {
		return nil, err
	}

	chain := working.ReceivingChains[header.SessionID]
	mk, next, err := s.engine.MessageKey(*chain, header.MessageNumber)
	if err != nil {
		return nil, err
	}
	defer clear(mk)

	plain, err := s.engine.DecryptMessage(msg.Ciphertext, mk, msg.Nonce, associatedData(peer, s.cfg.LocalID, msg.RatchetHeader))
	if err != nil {
		return nil, err
	}
	defer clear(plain)

	var env model.Envelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return nil, apperrors.WithCause(apperrors.ErrMalformedEnvelope, err)
	}

	*chain = next
	if header.SessionID == working.SessionID {
		// the peer answered inside our session
		working.Handshake = nil
	}
	working.UpdatedAt = s.cfg.Now()
	if err := s.commitSession(ctx, peer, working); err != nil {
		return nil, err
	}
	if answered {
		if err := s.handshaker.Accept(ctx, msg.Handshake); err != nil {
			log.Warn("consume one-time prekey", zap.String("peer", peer), zap.Error(err))
		}
	}

	return &model.DecryptedMessage{
		ID:          msg.ID,
		SenderID:    peer,
		RecipientID: s.cfg.LocalID,
		Content:     env.Content,
		Type:        env.Type,
		Metadata:    env.Metadata,
		Timestamp:   msg.Timestamp,
	}, nil
}

// ResetSession forgets the session with peer. The next send performs a new handshake.
func (s *Service) ResetSession(ctx context.Context, peerID string) error {
	lock := s.peerLock(peerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.sessions.DeleteSessionState(ctx, peerID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.arena, peerID)
	s.mu.Unlock()

	log.Info("session reset", zap.String("peer", peerID))
	return nil
}

// receivingSession returns a working copy of state that has a receiving chain
// for header.SessionID, answering the attached handshake when the session is
// new. answered reports whether the handshake was used.
func (s *Service) receivingSession(ctx context.Context, peer string, state *model.SessionState, header model.RatchetHeader, hs *model.Handshake) (working *model.SessionState, answered bool, err error) {
	if state == nil {
		working, err = s.respond(ctx, peer, header, hs)
		return working, err == nil, err
	}

	working = state.Clone()
	if _, ok := working.ReceivingChains[header.SessionID]; ok {
		return working, false, nil
	}
	if hs == nil {
		return nil, false, apperrors.WithCause(apperrors.ErrReceivingChainNotFound,
			fmt.Errorf("session %s", header.SessionID))
	}
	if len(working.PeerIdentityKey) > 0 && !bytes.Equal(working.PeerIdentityKey, hs.IdentityKey) {
		log.Warn("peer identity key changed", zap.String("peer", peer))
		return nil, false, apperrors.ErrIdentityKeyChanged
	}

	fresh, err := s.respond(ctx, peer, header, hs)
	if err != nil {
		return nil, false, err
	}
	working.ReceivingChains[header.SessionID] = fresh.ReceivingChains[fresh.SessionID]
	if len(working.PeerIdentityKey) == 0 {
		working.PeerIdentityKey = fresh.PeerIdentityKey
	}
	return working, true, nil
}

func (s *Service) respond(ctx context.Context, peer string, header model.RatchetHeader, hs *model.Handshake) (*model.SessionState, error) {
	fresh, err := s.handshaker.Respond(ctx, peer, hs)
	if err != nil {
		return nil, err
	}
	if fresh.SessionID != header.SessionID {
		return nil, apperrors.WithCause(apperrors.ErrSessionMismatch,
			fmt.Errorf("derived %s, header %s", fresh.SessionID, header.SessionID))
	}
	return fresh, nil
}

func (s *Service) loadSession(ctx context.Context, peer string) (*model.SessionState, error) {
	s.mu.Lock()
	state, ok := s.arena[peer]
	s.mu.Unlock()
	if ok {
		return state, nil
	}

	state, err := s.sessions.GetSessionState(ctx, peer)
	if err != nil {
		return nil, err
	}
	if state != nil {
		s.mu.Lock()
		s.arena[peer] = state
		s.mu.Unlock()
	}
	return state, nil
}

// commitSession stores state and only then makes it the in-memory session.
func (s *Service) commitSession(ctx context.Context, peer string, state *model.SessionState) error {
	if err := s.sessions.UpdateSessionState(ctx, peer, state); err != nil {
		log.Error("persist session state",
			zap.String("peer", peer),
			zap.Error(err),
		)
		return err
	}
	s.mu.Lock()
	s.arena[peer] = state
	s.mu.Unlock()
	return nil
}

func (s *Service) peerLock(peer string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.peerLocks[peer]
	if !ok {
		l = &sync.Mutex{}
		s.peerLocks[peer] = l
	}
	return l
}

// associatedData binds sender, recipient and header to the ciphertext.
func associatedData(sender, recipient, header string) []byte {
	ad := make([]byte, 0, len(sender)+len(recipient)+len(header)+3*binary.MaxVarintLen64)
	for _, part := range []string{sender, recipient, header} {
		ad = binary.AppendUvarint(ad, uint64(len(part)))
		ad = append(ad, part...)
	}
	return ad
}
