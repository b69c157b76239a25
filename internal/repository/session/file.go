package session

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/cryptographic/sealed"
	"e2e_messaging/internal/model"
	"e2e_messaging/internal/utils/fileutil"
	"e2e_messaging/internal/utils/log"
)

type (
	// FileStore keeps every session of one local user in a single file, sealed
	// with a passphrase when one is configured. Writes replace the file atomically.
	FileStore struct {
		mu         sync.Mutex
		path       string
		passphrase string
		params     sealed.Params
		states     map[string]*model.SessionState
	}

	FileOption func(*FileStore)
)

var _ Store = (*FileStore)(nil)

func WithSealParams(p sealed.Params) FileOption {
	return func(s *FileStore) { s.params = p }
}

func NewFileStore(dir, localID, passphrase string, opts ...FileOption) *FileStore {
	s := &FileStore{
		path:       filepath.Join(dir, fmt.Sprintf("sessions_%s.json", localID)),
		passphrase: passphrase,
		params:     sealed.DefaultParams,
	}
	for _, opt := range opts {
		opt(s)
	}
	if passphrase == "" {
		log.Warn("session store is not sealed, set storage.passphrase", zap.String("path", s.path))
	}
	return s
}

func (s *FileStore) GetSessionState(_ context.Context, peerID string) (*model.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s.states[peerID].Clone(), nil
}

func (s *FileStore) UpdateSessionState(_ context.Context, peerID string, state *model.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}

	prev, had := s.states[peerID]
	s.states[peerID] = state.Clone()
	if err := s.saveLocked(); err != nil {
		if had {
			s.states[peerID] = prev
		} else {
			delete(s.states, peerID)
		}
		return err
	}
	return nil
}

func (s *FileStore) DeleteSessionState(_ context.Context, peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}
	prev, had := s.states[peerID]
	if !had {
		return nil
	}
	delete(s.states, peerID)
	if err := s.saveLocked(); err != nil {
		s.states[peerID] = prev
		return err
	}
	return nil
}

func (s *FileStore) loadLocked() error {
	if s.states != nil {
		return nil
	}

	b, err := fileutil.ReadFile(s.path)
	if err != nil {
		return apperrors.Persistence("read session file", err)
	}

	states := make(map[string]*model.SessionState)
	if len(b) == 0 {
		s.states = states
		return nil
	}

	if s.passphrase != "" {
		b, err = sealed.Open(s.passphrase, b)
		if err != nil {
			return apperrors.Persistence("open session file", err)
		}
	}

	if err := json.Unmarshal(b, &states); err != nil {
		return apperrors.Persistence("decode session file", err)
	}
	s.states = states
	return nil
}

func (s *FileStore) saveLocked() error {
	b, err := json.Marshal(s.states)
	if err != nil {
		return apperrors.Persistence("encode session file", err)
	}

	if s.passphrase != "" {
		raw := b
		b, err = sealed.Seal(s.passphrase, raw, s.params)
		clear(raw)
		if err != nil {
			return apperrors.Persistence("seal session file", err)
		}
	}

	if err := fileutil.WriteFile(s.path, b, 0o600); err != nil {
		return apperrors.Persistence("write session file", err)
	}
	return nil
}
