// Package store provides durable persistence for conversation turns that are
// buffered while waiting to be uploaded to the remote memory service.
//
// A turn survives process restart: it is committed before Append returns and
// is only removed by Drain, in the same transaction that reads it.
//
// Supported backends:
// - GORM: embedded SQLite for single-node deployments, Postgres/MySQL for shared ones
// - Redis: for distributed deployments
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/memflow/types"
)

// Common errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrStoreClosed  = errors.New("store is closed")
)

// Type represents the type of storage backend.
type Type string

const (
	TypeGorm  Type = "gorm"
	TypeRedis Type = "redis"
)

// Turn is one buffered role-tagged message belonging to a conversation.
// Sequence numbers are monotonically increasing and unique per conversation.
type Turn struct {
	ConversationID string     `json:"conversation_id"`
	MessageID      int64      `json:"message_id"`
	Role           types.Role `json:"role"`
	Content        string     `json:"content"`
}

// Message converts the turn to a gateway message.
func (t Turn) Message() types.Message {
	return types.Message{Role: t.Role, Content: t.Content}
}

// Messages converts a drained batch to ordered gateway messages.
func Messages(turns []Turn) []types.Message {
	msgs := make([]types.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, t.Message())
	}
	return msgs
}

// TurnStore persists pending turns keyed by conversation.
//
// Append and Drain for the same conversation are mutually exclusive, so two
// concurrent rounds cannot interleave their sequence-number assignment.
type TurnStore interface {
	// Append assigns the next sequence number for the conversation
	// (max existing + 1, or 0 if none), inserts the row, and commits
	// before returning.
	Append(ctx context.Context, conversationID string, role types.Role, content string) error

	// Count returns the number of currently buffered rows (turns, not
	// rounds) for the conversation.
	Count(ctx context.Context, conversationID string) (int64, error)

	// Drain reads all rows for the conversation ordered by sequence number
	// ascending and deletes them in the same unit of work. Draining a
	// conversation with no rows returns an empty slice.
	Drain(ctx context.Context, conversationID string) ([]Turn, error)

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// Config selects and configures a turn store backend.
type Config struct {
	Type  Type
	Redis RedisOptions
}

// NewTurnStore creates a TurnStore based on the configuration. The GORM
// backend requires an open *gorm.DB; the Redis backend ignores it.
func NewTurnStore(cfg Config, db *gorm.DB, logger *zap.Logger) (TurnStore, error) {
	switch cfg.Type {
	case TypeGorm:
		if db == nil {
			return nil, fmt.Errorf("gorm turn store requires a database connection")
		}
		return NewGormTurnStore(db, logger)
	case TypeRedis:
		return NewRedisTurnStore(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unsupported turn store type: %s", cfg.Type)
	}
}
