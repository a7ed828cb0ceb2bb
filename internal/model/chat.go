package model

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	Role        MessageRole
	Content     string
	Date        time.Time
	LLMProvider string
	LLMKey      string
}

func (m ChatMessage) IsFromUser() bool {
	return m.Role == MessageRoleUser
}

type ChatRoom struct {
	ID            uuid.UUID
	Title         string
	MessagesCount int
	UpdatedAt     time.Time
	Messages      []ChatMessage
}

// WithMessages returns a copy of the room holding msgs, with MessagesCount kept in step.
func (r ChatRoom) WithMessages(msgs []ChatMessage) ChatRoom {
	r.Messages = msgs
	r.MessagesCount = len(msgs)
	return r
}

// AppendMessages returns a copy of the room with msgs appended in order.
func (r ChatRoom) AppendMessages(msgs ...ChatMessage) ChatRoom {
	combined := make([]ChatMessage, 0, len(r.Messages)+len(msgs))
	combined = append(combined, r.Messages...)
	combined = append(combined, msgs...)
	return r.WithMessages(combined)
}
