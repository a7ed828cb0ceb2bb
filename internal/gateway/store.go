package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/model"
)

type User struct {
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// RefreshToken is stored by hash only.
type RefreshToken struct {
	Hash      string
	Email     string
	ExpiresAt time.Time
}

type Room struct {
	ID        uuid.UUID
	Owner     string
	Title     string
	UpdatedAt time.Time
	Messages  []model.ChatMessage
}

// Store keeps users, refresh tokens and rooms in memory. Lookups that find
// nothing return nil without an error.
type Store struct {
	now func() time.Time

	mu            sync.RWMutex
	users         map[string]*User
	refreshTokens map[string]*RefreshToken
	rooms         map[uuid.UUID]*Room
}

func NewStore(now func() time.Time) *Store {
	return &Store{
		now:           now,
		users:         make(map[string]*User),
		refreshTokens: make(map[string]*RefreshToken),
		rooms:         make(map[uuid.UUID]*Room),
	}
}

func (s *Store) CreateUser(_ context.Context, email, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[email]; ok {
		return nil, apperrors.AlreadyExists("User")
	}
	user := &User{Email: email, PasswordHash: passwordHash, CreatedAt: s.now()}
	s.users[email] = user
	copied := *user
	return &copied, nil
}

func (s *Store) FindUser(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (s *Store) SaveRefreshToken(_ context.Context, token RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens[token.Hash] = &token
	return nil
}

func (s *Store) FindRefreshToken(_ context.Context, hash string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.refreshTokens[hash]
	if !ok {
		return nil, nil
	}
	copied := *token
	return &copied, nil
}

// DeleteExpiredRefreshTokens removes refresh tokens past their expiry.
func (s *Store) DeleteExpiredRefreshTokens(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var count int64
	for hash, token := range s.refreshTokens {
		if !now.Before(token.ExpiresAt) {
			delete(s.refreshTokens, hash)
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateRoom(_ context.Context, owner, title string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := &Room{
		ID:        uuid.New(),
		Owner:     owner,
		Title:     title,
		UpdatedAt: s.now(),
	}
	s.rooms[room.ID] = room
	return cloneRoom(room), nil
}

// FindRoom returns the room only when owner matches.
func (s *Store) FindRoom(_ context.Context, owner string, id uuid.UUID) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok || room.Owner != owner {
		return nil, nil
	}
	return cloneRoom(room), nil
}

// ListRooms returns the owner's rooms, most recently updated first.
func (s *Store) ListRooms(_ context.Context, owner string) ([]Room, error) {
	s.mu.RLock()
	rooms := make([]Room, 0)
	for _, room := range s.rooms {
		if room.Owner == owner {
			rooms = append(rooms, *cloneRoom(room))
		}
	}
	s.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

func (s *Store) AppendMessages(_ context.Context, owner string, id uuid.UUID, msgs ...model.ChatMessage) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok || room.Owner != owner {
		return nil, apperrors.NotFound("Chat room")
	}
	room.Messages = append(room.Messages, msgs...)
	room.UpdatedAt = s.now()
	return cloneRoom(room), nil
}

func cloneRoom(room *Room) *Room {
	copied := *room
	copied.Messages = append([]model.ChatMessage(nil), room.Messages...)
	return &copied
}
