package gateway

import (
	"context"
	"fmt"

	"github.com/buddyapp/buddy-client-go/internal/model"
)

// Responder produces the assistant reply for a room's history. The last
// message in history is the user's new message.
type Responder interface {
	Reply(ctx context.Context, llm model.LLMModel, history []model.ChatMessage) (string, error)
}

// EchoResponder answers by repeating the user's message.
type EchoResponder struct{}

func (EchoResponder) Reply(_ context.Context, llm model.LLMModel, history []model.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("empty history")
	}
	return fmt.Sprintf("[%s] %s", llm.DisplayName, history[len(history)-1].Content), nil
}

// DefaultModels is the model list the gateway advertises.
var DefaultModels = []model.LLMModel{
	{Provider: "openai", Key: "gpt-4o-mini", DisplayName: "GPT-4o mini", Description: "Fast and affordable"},
	{Provider: "openai", Key: "gpt-4o", DisplayName: "GPT-4o", Description: "Flagship multimodal model"},
	{Provider: "anthropic", Key: "claude-3-5-haiku", DisplayName: "Claude 3.5 Haiku", Description: "Quick everyday assistant"},
}
