package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 30, 15, 250_000_000, time.UTC)

	tests := []struct {
		name string
		raw  string
	}{
		{"fractional with offset", "2024-05-01T12:30:15.250Z"},
		{"fractional with numeric offset", "2024-05-01T14:30:15.250+02:00"},
		{"zoneless fractional is UTC", "2024-05-01T12:30:15.250"},
		{"zoneless microseconds", "2024-05-01T12:30:15.250000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestamp(tc.raw)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}

	t.Run("zoneless whole seconds", func(t *testing.T) {
		got, err := ParseTimestamp("2024-05-01T12:30:15")
		require.NoError(t, err)
		assert.True(t, want.Truncate(time.Second).Equal(got))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseTimestamp("yesterday")
		assert.ErrorContains(t, err, "invalid date format")
	})
}

func TestTimestampJSON(t *testing.T) {
	var out struct {
		Date Timestamp `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-05-01T12:30:15.250Z"}`), &out))

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-05-01T12:30:15.250Z"}`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`{"date":12}`), &out))
}

func TestAuthorizationToken(t *testing.T) {
	token := AuthorizationToken{AccessToken: "a", RefreshToken: "r", ExpiryTimestamp: 1_700_000_060}
	now := time.Unix(1_700_000_000, 0)

	assert.Equal(t, 60*time.Second, token.Remaining(now))
	assert.Equal(t, now.Add(time.Minute), token.ExpiresAt())

	data, err := json.Marshal(token)
	require.NoError(t, err)
	assert.JSONEq(t, `{"accessToken":"a","refreshToken":"r","expiryTimestamp":1700000060}`, string(data))
}

func TestSessionAndStatus(t *testing.T) {
	session := Session{
		User:            User{Email: "a@b.com"},
		AvailableModels: []LLMModel{{Provider: "openai", Key: "gpt-4o"}},
	}

	m, ok := session.FindModel("gpt-4o")
	assert.True(t, ok)
	assert.Equal(t, "openai", m.Provider)
	_, ok = session.FindModel("missing")
	assert.False(t, ok)

	var nilSession *Session
	_, ok = nilSession.FindModel("gpt-4o")
	assert.False(t, ok)

	assert.True(t, LoggedIn(session).IsLoggedIn())
	assert.False(t, ValidatingToken().IsLoggedIn())
	assert.False(t, LoggedOut().IsLoggedIn())
}

func TestChatRoomMessages(t *testing.T) {
	room := ChatRoom{Title: "t", MessagesCount: 7}

	room = room.WithMessages([]ChatMessage{{Role: MessageRoleUser, Content: "hi"}})
	assert.Equal(t, 1, room.MessagesCount)

	appended := room.AppendMessages(ChatMessage{Role: MessageRoleAssistant, Content: "hello!"})
	assert.Equal(t, 2, appended.MessagesCount)
	assert.Len(t, room.Messages, 1, "original room is unchanged")
	assert.True(t, appended.Messages[0].IsFromUser())
	assert.False(t, appended.Messages[1].IsFromUser())

	assert.True(t, MessageRoleUser.Valid())
	assert.False(t, MessageRole("system").Valid())
}
