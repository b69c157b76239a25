package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/model"
	redisservice "e2e_messaging/internal/service/redis"
)

// RedisStore keeps one key per (local user, peer) pair.
type RedisStore struct {
	redisService *redisservice.RedisService
	localID      string
	ttl          time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore stores states with the given ttl; 0 keeps them until deleted.
func NewRedisStore(redisService *redisservice.RedisService, localID string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		redisService: redisService,
		localID:      localID,
		ttl:          ttl,
	}
}

func (r *RedisStore) key(peerID string) string {
	return fmt.Sprintf("from: %s, to: %s", r.localID, peerID)
}

func (r *RedisStore) GetSessionState(ctx context.Context, peerID string) (*model.SessionState, error) {
	b, err := r.redisService.GetBytes(ctx, r.key(peerID))
	if err != nil {
		return nil, apperrors.Persistence("get session state", err)
	}
	if b == nil {
		return nil, nil
	}

	var state model.SessionState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, apperrors.Persistence("decode session state", err)
	}
	return &state, nil
}

func (r *RedisStore) UpdateSessionState(ctx context.Context, peerID string, state *model.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.Persistence("encode session state", err)
	}
	if err := r.redisService.Set(ctx, r.key(peerID), data, r.ttl); err != nil {
		return apperrors.Persistence("set session state", err)
	}
	return nil
}

func (r *RedisStore) DeleteSessionState(ctx context.Context, peerID string) error {
	if err := r.redisService.Del(ctx, r.key(peerID)); err != nil {
		return apperrors.Persistence("delete session state", err)
	}
	return nil
}
