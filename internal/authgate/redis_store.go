package authgate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "biometric:challenge:"

// RedisChallengeStore persists challenges in Redis with a TTL matched to the
// challenge expiry, so abandoned handshakes evict themselves.
type RedisChallengeStore struct {
	client *redis.Client
}

// NewRedisChallengeStore builds a Redis-backed challenge store.
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

// Put stores the challenge, keeping it alive slightly past its expiry so a
// late completion attempt sees the expired record instead of "not found".
func (s *RedisChallengeStore) Put(ctx context.Context, ch Challenge) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	ttl := time.Until(ch.ExpiresAt) + time.Hour
	return s.client.Set(ctx, challengeKeyPrefix+ch.ID, payload, ttl).Err()
}

// Get loads a challenge by identifier.
func (s *RedisChallengeStore) Get(ctx context.Context, id string) (Challenge, error) {
	raw, err := s.client.Get(ctx, challengeKeyPrefix+id).Result()
	if err == redis.Nil {
		return Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return Challenge{}, err
	}
	var ch Challenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}
