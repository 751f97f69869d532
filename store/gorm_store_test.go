package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/memflow/types"
)

func newTestGormStore(t *testing.T) *GormTurnStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	s, err := NewGormTurnStore(db, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestGormTurnStore_AppendAssignsSequence(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "c1", types.RoleUser, "hi"))
	require.NoError(t, s.Append(ctx, "c1", types.RoleAssistant, "hello"))
	require.NoError(t, s.Append(ctx, "c2", types.RoleUser, "other"))

	turns, err := s.Drain(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, turns, 2)

	// Sequence starts at 0 and is gapless per conversation.
	assert.Equal(t, int64(0), turns[0].MessageID)
	assert.Equal(t, int64(1), turns[1].MessageID)
	assert.Equal(t, types.RoleUser, turns[0].Role)
	assert.Equal(t, types.RoleAssistant, turns[1].Role)

	// c2 is untouched by c1's drain.
	n, err := s.Count(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormTurnStore_DrainPreservesAppendOrder(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	rounds := []types.Round{
		{User: "hi", Assistant: "hello"},
		{User: "how are you", Assistant: "fine"},
		{User: "bye", Assistant: "goodbye"},
	}
	for _, r := range rounds {
		require.NoError(t, s.Append(ctx, "c1", types.RoleUser, r.User))
		require.NoError(t, s.Append(ctx, "c1", types.RoleAssistant, r.Assistant))
	}

	turns, err := s.Drain(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, turns, 6)

	want := []string{"hi", "hello", "how are you", "fine", "bye", "goodbye"}
	for i, content := range want {
		assert.Equal(t, content, turns[i].Content, "turn %d out of order", i)
	}
}

func TestGormTurnStore_DrainEmptiesBuffer(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "c1", types.RoleUser, "hi"))
	require.NoError(t, s.Append(ctx, "c1", types.RoleAssistant, "hello"))

	turns, err := s.Drain(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)

	n, err := s.Count(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// Sequence restarts after a drain; the next buffer is self-consistent.
	require.NoError(t, s.Append(ctx, "c1", types.RoleUser, "again"))
	turns, err = s.Drain(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, int64(0), turns[0].MessageID)
}

func TestGormTurnStore_DrainEmptyConversation(t *testing.T) {
	s := newTestGormStore(t)

	turns, err := s.Drain(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestGormTurnStore_InvalidInput(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Append(ctx, "", types.RoleUser, "hi"), ErrInvalidInput)
	assert.ErrorIs(t, s.Append(ctx, "c1", types.Role("system"), "hi"), ErrInvalidInput)
}

func TestGormTurnStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "turns.db")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	s, err := NewGormTurnStore(db, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, "c1", types.RoleUser, "hi"))
	require.NoError(t, s.Append(ctx, "c1", types.RoleAssistant, "hello"))

	// Simulated restart: close the connection and reopen the same file.
	require.NoError(t, s.Close())
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	db2, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	s2, err := NewGormTurnStore(db2, zap.NewNop())
	require.NoError(t, err)

	n, err := s2.Count(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	turns, err := s2.Drain(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, "hello", turns[1].Content)
}

func TestGormTurnStore_ConcurrentAppendsSameConversation(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	const rounds = 20
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, "c1", types.RoleUser, fmt.Sprintf("msg-%d", i))
		}(i)
	}
	wg.Wait()

	turns, err := s.Drain(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, turns, rounds)

	// All sequence numbers are unique and gapless.
	seen := make(map[int64]bool, rounds)
	for _, turn := range turns {
		assert.False(t, seen[turn.MessageID], "duplicate message_id %d", turn.MessageID)
		seen[turn.MessageID] = true
	}
	for i := int64(0); i < rounds; i++ {
		assert.True(t, seen[i], "missing message_id %d", i)
	}
}

func TestGormTurnStore_ClosedStore(t *testing.T) {
	s := newTestGormStore(t)
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Append(ctx, "c1", types.RoleUser, "hi"), ErrStoreClosed)
	_, err := s.Count(ctx, "c1")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.Drain(ctx, "c1")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestNewTurnStore_Factory(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	s, err := NewTurnStore(Config{Type: TypeGorm}, db, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &GormTurnStore{}, s)

	_, err = NewTurnStore(Config{Type: TypeGorm}, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewTurnStore(Config{Type: "mongo"}, nil, zap.NewNop())
	assert.Error(t, err)
}
