package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/httputil"
	"github.com/buddyapp/buddy-client-go/internal/middleware"
	"github.com/buddyapp/buddy-client-go/internal/model"
)

const maxTitleLength = 40

type roomSummary struct {
	RoomID        uuid.UUID       `json:"room_id"`
	Title         string          `json:"title"`
	MessagesCount int             `json:"messages_count"`
	UpdatedAt     model.Timestamp `json:"updated_at"`
}

type messageBody struct {
	Role        model.MessageRole `json:"role"`
	LLMProvider string            `json:"llm_provider"`
	LLMKey      string            `json:"llm_key"`
	Content     string            `json:"content"`
	Date        model.Timestamp   `json:"date"`
}

type sendMessageRequest struct {
	RoomID      *uuid.UUID `json:"room_id"`
	LLMProvider string     `json:"llm_provider"`
	LLMKey      string     `json:"llm_key"`
	Message     string     `json:"message"`
}

type sendMessageResponse struct {
	messageBody
	RoomID    uuid.UUID       `json:"room_id"`
	Title     string          `json:"title"`
	UpdatedAt model.Timestamp `json:"updated_at"`
}

type dataResponse[T any] struct {
	Data []T `json:"data"`
}

func (g *Gateway) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := g.store.ListRooms(r.Context(), middleware.GetEmail(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]roomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomSummary{
			RoomID:        room.ID,
			Title:         room.Title,
			MessagesCount: len(room.Messages),
			UpdatedAt:     model.Timestamp{Time: room.UpdatedAt},
		})
	}
	httputil.WriteJSON(w, http.StatusOK, dataResponse[roomSummary]{Data: out})
}

func (g *Gateway) listMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "roomID"))
	if err != nil {
		httputil.WriteError(w, apperrors.NotFound("Chat room"))
		return
	}

	room, err := g.store.FindRoom(r.Context(), middleware.GetEmail(r.Context()), roomID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if room == nil {
		httputil.WriteError(w, apperrors.NotFound("Chat room"))
		return
	}

	out := make([]messageBody, 0, len(room.Messages))
	for _, msg := range room.Messages {
		out = append(out, toMessageBody(msg))
	}
	httputil.WriteJSON(w, http.StatusOK, dataResponse[messageBody]{Data: out})
}

func (g *Gateway) sendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := middleware.GetEmail(ctx)

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		httputil.WriteError(w, apperrors.MissingRequired("message"))
		return
	}
	llm, ok := g.findModel(req.LLMProvider, req.LLMKey)
	if !ok {
		httputil.WriteError(w, apperrors.InvalidInput("llm_key", "unknown model"))
		return
	}

	var room *Room
	var err error
	if req.RoomID != nil {
		room, err = g.store.FindRoom(ctx, email, *req.RoomID)
		if err == nil && room == nil {
			err = apperrors.NotFound("Chat room")
		}
	} else {
		room, err = g.store.CreateRoom(ctx, email, titleFrom(req.Message))
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	userMessage := model.ChatMessage{
		Role:        model.MessageRoleUser,
		Content:     req.Message,
		Date:        g.now(),
		LLMProvider: llm.Provider,
		LLMKey:      llm.Key,
	}
	history := append(room.Messages, userMessage)

	content, err := g.responder.Reply(ctx, llm, history)
	if err != nil {
		log.Error().Err(err).Str("model", llm.Key).Msg("assistant reply failed")
		httputil.WriteError(w, apperrors.External(llm.Provider, err))
		return
	}

	reply := model.ChatMessage{
		Role:        model.MessageRoleAssistant,
		Content:     content,
		Date:        g.now(),
		LLMProvider: llm.Provider,
		LLMKey:      llm.Key,
	}
	room, err = g.store.AppendMessages(ctx, email, room.ID, userMessage, reply)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if req.RoomID == nil {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, sendMessageResponse{
		messageBody: toMessageBody(reply),
		RoomID:      room.ID,
		Title:       room.Title,
		UpdatedAt:   model.Timestamp{Time: room.UpdatedAt},
	})
}

func (g *Gateway) findModel(provider, key string) (model.LLMModel, bool) {
	for _, m := range g.models {
		if m.Key == key && (provider == "" || m.Provider == provider) {
			return m, true
		}
	}
	return model.LLMModel{}, false
}

func toMessageBody(msg model.ChatMessage) messageBody {
	return messageBody{
		Role:        msg.Role,
		LLMProvider: msg.LLMProvider,
		LLMKey:      msg.LLMKey,
		Content:     msg.Content,
		Date:        model.Timestamp{Time: msg.Date},
	}
}

// titleFrom uses the first line of the opening message, cut to maxTitleLength runes.
func titleFrom(message string) string {
	title, _, _ := strings.Cut(message, "\n")
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleLength])) + "…"
}
