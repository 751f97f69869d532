package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("system").Valid())
	assert.False(t, Role("").Valid())
}

func TestRound_Complete(t *testing.T) {
	tests := []struct {
		name     string
		round    Round
		complete bool
	}{
		{"both sides", Round{User: "你好", Assistant: "你好！有什么可以帮您？"}, true},
		{"missing assistant", Round{User: "hello"}, false},
		{"missing user", Round{Assistant: "hi"}, false},
		{"empty", Round{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.complete, tt.round.Complete())
		})
	}
}

func TestRound_Messages(t *testing.T) {
	round := Round{User: "北京天气怎么样", Assistant: "今天晴，气温 25 度。"}
	msgs := round.Messages()

	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, round.User, msgs[0].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, round.Assistant, msgs[1].Content)
	assert.False(t, msgs[0].Timestamp.IsZero())
}
