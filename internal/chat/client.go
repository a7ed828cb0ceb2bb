// Package chat lists chat rooms and messages and sends messages to the LLM backend.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/buddyapp/buddy-client-go/internal/authorized"
	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/model"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrGeneral      = errors.New("general failure")
)

type roomDTO struct {
	RoomID        uuid.UUID       `json:"room_id"`
	Title         string          `json:"title"`
	MessagesCount int             `json:"messages_count"`
	UpdatedAt     model.Timestamp `json:"updated_at"`
}

type listRoomsResponse struct {
	Data []roomDTO `json:"data"`
}

type messageDTO struct {
	Role        model.MessageRole `json:"role"`
	LLMProvider string            `json:"llm_provider"`
	LLMKey      string            `json:"llm_key"`
	Content     string            `json:"content"`
	Date        model.Timestamp   `json:"date"`
}

func (m messageDTO) toModel() model.ChatMessage {
	return model.ChatMessage{
		Role:        m.Role,
		Content:     m.Content,
		Date:        m.Date.Time,
		LLMProvider: m.LLMProvider,
		LLMKey:      m.LLMKey,
	}
}

type listMessagesResponse struct {
	Data []messageDTO `json:"data"`
}

type sendMessageRequest struct {
	RoomID      *uuid.UUID `json:"room_id,omitempty"`
	LLMProvider string     `json:"llm_provider"`
	LLMKey      string     `json:"llm_key"`
	Message     string     `json:"message"`
}

type sendMessageResponse struct {
	messageDTO
	RoomID    uuid.UUID       `json:"room_id"`
	Title     string          `json:"title"`
	UpdatedAt model.Timestamp `json:"updated_at"`
}

// SendMessageInput describes one user message. A nil RoomID starts a new room.
type SendMessageInput struct {
	RoomID   *uuid.UUID
	Provider string
	Key      string
	Text     string
}

// SendMessageOutcome holds the updated room. Its last two messages are
// UserMessage followed by Reply.
type SendMessageOutcome struct {
	Room        model.ChatRoom
	UserMessage model.ChatMessage
	Reply       model.ChatMessage
	Created     bool
}

type Client struct {
	layer *authorized.Layer
	now   func() time.Time

	mu    sync.RWMutex
	rooms map[uuid.UUID]model.ChatRoom
}

type Option func(*Client)

// WithNowFunc sets the clock used to timestamp outgoing user messages.
func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func New(layer *authorized.Layer, opts ...Option) *Client {
	c := &Client{
		layer: layer,
		now:   time.Now,
		rooms: make(map[uuid.UUID]model.ChatRoom),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListChatRooms fetches the user's rooms and refreshes the cache. Messages
// already loaded for a room are kept when the server count still matches.
func (c *Client) ListChatRooms(ctx context.Context) ([]model.ChatRoom, error) {
	resp, err := authorized.Get[listRoomsResponse](ctx, c.layer, c.layer.URL("llm", "chats"))
	if err != nil {
		return nil, mapError("list chat rooms", err, false)
	}

	rooms := make([]model.ChatRoom, 0, len(resp.Data))

	c.mu.Lock()
	next := make(map[uuid.UUID]model.ChatRoom, len(resp.Data))
	for _, dto := range resp.Data {
		room := model.ChatRoom{
			ID:            dto.RoomID,
			Title:         dto.Title,
			MessagesCount: dto.MessagesCount,
			UpdatedAt:     dto.UpdatedAt.Time,
		}
		if cached, ok := c.rooms[dto.RoomID]; ok && len(cached.Messages) == dto.MessagesCount {
			room.Messages = cached.Messages
		}
		next[room.ID] = room
		rooms = append(rooms, room)
	}
	c.rooms = next
	c.mu.Unlock()

	return rooms, nil
}

// ListChatMessages fetches the messages of one room in server order.
func (c *Client) ListChatMessages(ctx context.Context, roomID uuid.UUID) ([]model.ChatMessage, error) {
	resp, err := authorized.Get[listMessagesResponse](ctx, c.layer, c.layer.URL("llm", "chats", roomID.String()))
	if err != nil {
		return nil, mapError("list chat messages", err, true)
	}

	messages := make([]model.ChatMessage, 0, len(resp.Data))
	for _, dto := range resp.Data {
		messages = append(messages, dto.toModel())
	}

	c.mu.Lock()
	if room, ok := c.rooms[roomID]; ok {
		c.rooms[roomID] = room.WithMessages(messages)
	}
	c.mu.Unlock()

	return messages, nil
}

// SendMessage posts a user message and returns the room with the user
// message and the assistant reply appended, in that order.
func (c *Client) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutcome, error) {
	text := strings.TrimSpace(in.Text)
	switch {
	case text == "":
		return nil, fmt.Errorf("%w: %w", ErrGeneral, apperrors.MissingRequired("message"))
	case in.Provider == "":
		return nil, fmt.Errorf("%w: %w", ErrGeneral, apperrors.MissingRequired("llm_provider"))
	case in.Key == "":
		return nil, fmt.Errorf("%w: %w", ErrGeneral, apperrors.MissingRequired("llm_key"))
	}

	userMessage := model.ChatMessage{
		Role:        model.MessageRoleUser,
		Content:     text,
		Date:        c.now(),
		LLMProvider: in.Provider,
		LLMKey:      in.Key,
	}

	resp, err := authorized.Post[sendMessageResponse](ctx, c.layer, c.layer.URL("llm", "chats"), sendMessageRequest{
		RoomID:      in.RoomID,
		LLMProvider: in.Provider,
		LLMKey:      in.Key,
		Message:     text,
	})
	if err != nil {
		return nil, mapError("send message", err, false)
	}

	reply := resp.toModel()

	c.mu.Lock()
	room, existed := c.rooms[resp.RoomID]
	if !existed {
		room = model.ChatRoom{ID: resp.RoomID}
	}
	room.Title = resp.Title
	room.UpdatedAt = resp.UpdatedAt.Time
	room = room.AppendMessages(userMessage, reply)
	c.rooms[room.ID] = room
	c.mu.Unlock()

	log.Debug().
		Str("roomId", room.ID.String()).
		Bool("created", in.RoomID == nil).
		Int("messagesCount", room.MessagesCount).
		Msg("message sent")

	return &SendMessageOutcome{
		Room:        room,
		UserMessage: userMessage,
		Reply:       reply,
		Created:     in.RoomID == nil,
	}, nil
}

// Room returns the cached room with id.
func (c *Client) Room(id uuid.UUID) (model.ChatRoom, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	room, ok := c.rooms[id]
	return room, ok
}

// Rooms returns the cached rooms, most recently updated first.
func (c *Client) Rooms() []model.ChatRoom {
	c.mu.RLock()
	rooms := make([]model.ChatRoom, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.RUnlock()

	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms
}

func mapError(op string, err error, notFound bool) error {
	switch {
	case apperrors.HasCode(err, apperrors.ErrCodeUnauthorized):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case notFound && apperrors.HasCode(err, apperrors.ErrCodeNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		log.Error().Err(err).Str("op", op).Msg("chat request failed")
		return fmt.Errorf("%w: %w", ErrGeneral, err)
	}
}
