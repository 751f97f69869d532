package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// RedisTurnStore is a Redis-based TurnStore for distributed deployments.
// Each conversation's buffer is a Redis list; RPUSH keeps append order and
// the single-threaded server keeps sequence assignment serial.
type RedisTurnStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// redisTurn is the JSON shape of one list entry.
type redisTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewRedisTurnStore creates a Redis-backed turn store.
func NewRedisTurnStore(opts RedisOptions, logger *zap.Logger) (*RedisTurnStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := opts.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "memflow:"
	}

	return &RedisTurnStore{
		client:    client,
		keyPrefix: keyPrefix + "buffer:",
		logger:    logger.With(zap.String("component", "turn_store_redis")),
	}, nil
}

// bufferKey returns the Redis key for a conversation's buffered turns.
func (s *RedisTurnStore) bufferKey(conversationID string) string {
	return s.keyPrefix + conversationID
}

// Append pushes the turn onto the conversation's list.
func (s *RedisTurnStore) Append(ctx context.Context, conversationID string, role types.Role, content string) error {
	if conversationID == "" || !role.Valid() {
		return ErrInvalidInput
	}

	data, err := json.Marshal(redisTurn{Role: string(role), Content: content})
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	if err := s.client.RPush(ctx, s.bufferKey(conversationID), data).Err(); err != nil {
		return err
	}

	s.logger.Debug("turn appended",
		zap.String("conversation_id", conversationID),
		zap.String("role", string(role)))
	return nil
}

// Count returns the length of the conversation's list.
func (s *RedisTurnStore) Count(ctx context.Context, conversationID string) (int64, error) {
	return s.client.LLen(ctx, s.bufferKey(conversationID)).Result()
}

// Drain reads the full list and deletes the key inside one MULTI/EXEC block,
// so no turn can be read twice by a second drainer.
func (s *RedisTurnStore) Drain(ctx context.Context, conversationID string) ([]Turn, error) {
	key := s.bufferKey(conversationID)

	var rangeCmd *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	raw, err := rangeCmd.Result()
	if err != nil {
		return nil, err
	}

	turns := make([]Turn, 0, len(raw))
	for i, entry := range raw {
		var rt redisTurn
		if err := json.Unmarshal([]byte(entry), &rt); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn %d: %w", i, err)
		}
		turns = append(turns, Turn{
			ConversationID: conversationID,
			MessageID:      int64(i),
			Role:           types.Role(rt.Role),
			Content:        rt.Content,
		})
	}

	if len(turns) > 0 {
		s.logger.Debug("conversation buffer drained",
			zap.String("conversation_id", conversationID),
			zap.Int("turns", len(turns)))
	}
	return turns, nil
}

// Ping checks if the store is healthy.
func (s *RedisTurnStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisTurnStore) Close() error {
	return s.client.Close()
}
