package telegrambot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// stateConnect is the only onboarding state. Its presence means the chat is
// waiting for a merchant code.
const stateConnect = "/connect"

// stateTTL bounds how long a dangling onboarding conversation is kept.
const stateTTL = 24 * time.Hour

// StateStore keeps the per-chat onboarding state in redis, keyed
// telegram_{chat_id}.
type StateStore struct {
	client *redis.Client
}

func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{client: client}
}

func stateKey(chatID int64) string {
	return fmt.Sprintf("telegram_%d", chatID)
}

// SetConnecting marks the chat as waiting for a merchant code.
func (s *StateStore) SetConnecting(ctx context.Context, chatID int64) error {
	if err := s.client.Set(ctx, stateKey(chatID), stateConnect, stateTTL).Err(); err != nil {
		return fmt.Errorf("telegrambot: set state: %w", err)
	}
	return nil
}

// IsConnecting reports whether the chat is waiting for a merchant code.
func (s *StateStore) IsConnecting(ctx context.Context, chatID int64) (bool, error) {
	value, err := s.client.Get(ctx, stateKey(chatID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("telegrambot: get state: %w", err)
	}
	return value == stateConnect, nil
}

// Clear drops the chat state.
func (s *StateStore) Clear(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, stateKey(chatID)).Err(); err != nil {
		return fmt.Errorf("telegrambot: clear state: %w", err)
	}
	return nil
}
