package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/memflow/types"
)

// TurnRecord is the GORM model for one buffered turn. One row per turn;
// (conversation_id, message_id) is the primary key and message_id is
// monotonically increasing per conversation.
type TurnRecord struct {
	ConversationID string    `gorm:"column:conversation_id;primaryKey;size:191"`
	MessageID      int64     `gorm:"column:message_id;primaryKey;autoIncrement:false"`
	Role           string    `gorm:"column:role;size:16;not null"`
	Content        string    `gorm:"column:content;type:text;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// TableName sets the table name for GORM.
func (TurnRecord) TableName() string { return "conversation_turns" }

// GormTurnStore is a GORM-backed TurnStore. Works against SQLite, Postgres
// and MySQL; the driver is chosen by whoever opens the *gorm.DB.
type GormTurnStore struct {
	db     *gorm.DB
	logger *zap.Logger

	// Per-conversation locks keep sequence assignment serial even on
	// backends whose default isolation would allow two transactions to
	// read the same max(message_id).
	locks sync.Map // conversationID -> *sync.Mutex

	mu     sync.RWMutex
	closed bool
}

// NewGormTurnStore creates a GORM-backed turn store and migrates its schema.
func NewGormTurnStore(db *gorm.DB, logger *zap.Logger) (*GormTurnStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&TurnRecord{}); err != nil {
		return nil, err
	}
	return &GormTurnStore{
		db:     db,
		logger: logger.With(zap.String("component", "turn_store_gorm")),
	}, nil
}

func (s *GormTurnStore) lockConversation(conversationID string) func() {
	v, _ := s.locks.LoadOrStore(conversationID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *GormTurnStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Append inserts the turn with the conversation's next sequence number and
// commits before returning.
func (s *GormTurnStore) Append(ctx context.Context, conversationID string, role types.Role, content string) error {
	if conversationID == "" || !role.Valid() {
		return ErrInvalidInput
	}
	if s.isClosed() {
		return ErrStoreClosed
	}

	unlock := s.lockConversation(conversationID)
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxID int64
		if err := tx.Model(&TurnRecord{}).
			Where("conversation_id = ?", conversationID).
			Select("COALESCE(MAX(message_id), -1)").
			Scan(&maxID).Error; err != nil {
			return err
		}

		rec := TurnRecord{
			ConversationID: conversationID,
			MessageID:      maxID + 1,
			Role:           string(role),
			Content:        content,
			CreatedAt:      time.Now(),
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return err
	}

	s.logger.Debug("turn appended",
		zap.String("conversation_id", conversationID),
		zap.String("role", string(role)))
	return nil
}

// Count returns the number of buffered rows for the conversation.
func (s *GormTurnStore) Count(ctx context.Context, conversationID string) (int64, error) {
	if s.isClosed() {
		return 0, ErrStoreClosed
	}

	var n int64
	err := s.db.WithContext(ctx).Model(&TurnRecord{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}

// Drain reads all rows for the conversation in append order and deletes them
// in the same transaction, so a crash in between cannot duplicate turns in
// the next batch.
func (s *GormTurnStore) Drain(ctx context.Context, conversationID string) ([]Turn, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	unlock := s.lockConversation(conversationID)
	defer unlock()

	var turns []Turn
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recs []TurnRecord
		if err := tx.Where("conversation_id = ?", conversationID).
			Order("message_id ASC").
			Find(&recs).Error; err != nil {
			return err
		}

		turns = make([]Turn, 0, len(recs))
		for _, r := range recs {
			turns = append(turns, Turn{
				ConversationID: r.ConversationID,
				MessageID:      r.MessageID,
				Role:           types.Role(r.Role),
				Content:        r.Content,
			})
		}

		if len(recs) == 0 {
			return nil
		}
		return tx.Where("conversation_id = ?", conversationID).
			Delete(&TurnRecord{}).Error
	})
	if err != nil {
		return nil, err
	}

	if len(turns) > 0 {
		s.logger.Debug("conversation buffer drained",
			zap.String("conversation_id", conversationID),
			zap.Int("turns", len(turns)))
	}
	return turns, nil
}

// Ping checks the underlying database connection.
func (s *GormTurnStore) Ping(ctx context.Context) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close marks the store closed. The *gorm.DB is owned by the caller that
// opened it and is not closed here.
func (s *GormTurnStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
